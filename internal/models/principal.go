package models

import "github.com/google/uuid"

// Principal is the verified identity attached to a request by the identity
// boundary (JWT or API key). The engine trusts it without re-verifying.
type Principal struct {
	UserID  uuid.UUID
	Address string
	Role    string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

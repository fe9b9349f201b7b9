package models

import (
	"github.com/google/uuid"
)

// APIKey authenticates a supplier's point-of-sale terminal for redemption
// calls. Only the SHA-256 hash is stored.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	IsActive  bool      `json:"is_active"`
}

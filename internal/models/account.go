package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Account roles. Suppliers list permits and redeem coupons at point-of-sale,
// issuers buy permits and mint coupons, customers hold and trade coupons.
const (
	RoleSupplier = "supplier"
	RoleIssuer   = "issuer"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Account is an authenticated user. Its ledger address is assigned at
// registration and never changes.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PointAccount is the per-address balance row. balance = total_earned - total_spent
// must hold after every mutation.
type PointAccount struct {
	Address     string    `json:"address"`
	Balance     *big.Int  `json:"balance"`
	TotalEarned *big.Int  `json:"total_earned"`
	TotalSpent  *big.Int  `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EscrowAccount pools custody value per supplier. balance = total_deposited -
// total_released; a negative balance means the ledger is corrupt.
type EscrowAccount struct {
	SupplierAddress string    `json:"supplier_address"`
	Balance         *big.Int  `json:"balance"`
	TotalDeposited  *big.Int  `json:"total_deposited"`
	TotalReleased   *big.Int  `json:"total_released"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

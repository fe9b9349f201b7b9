package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Permit statuses. REDEEMED, EXPIRED and CANCELLED are terminal.
const (
	PermitListed    = "LISTED"
	PermitSold      = "SOLD"
	PermitRedeemed  = "REDEEMED"
	PermitExpired   = "EXPIRED"
	PermitCancelled = "CANCELLED"
)

// Permit is a supplier-listed, tradeable right to mint up to Limit coupons at
// FaceValue each. Buying it transfers the right; redeeming it (exactly once,
// nonce-guarded) produces the Cap that actually mints.
type Permit struct {
	ID              uuid.UUID  `json:"id"`
	SupplierAddress string     `json:"supplier_address"`
	BuyerAddress    *string    `json:"buyer_address,omitempty"`
	Scope           string     `json:"scope"`
	Limit           int64      `json:"limit"`
	FaceValue       *big.Int   `json:"face_value"`
	TotalValue      *big.Int   `json:"total_value"` // limit * face_value
	Price           *big.Int   `json:"price"`
	ExpiresAt       time.Time  `json:"expires_at"`
	Status          string     `json:"status"`
	RedeemNonce     *string    `json:"-"`
	SoldAt          *time.Time `json:"sold_at,omitempty"`
	RedeemedAt      *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Cap statuses.
const (
	CapActive    = "ACTIVE"
	CapFrozen    = "FROZEN"
	CapExpired   = "EXPIRED"
	CapExhausted = "EXHAUSTED"
)

// Cap is the one-to-one, non-tradeable product of a redeemed Permit. It tracks
// the remaining mint quota: remaining = original_limit - issued_count >= 0.
type Cap struct {
	ID               uuid.UUID `json:"id"`
	PermitID         uuid.UUID `json:"permit_id"`
	OwnerAddress     string    `json:"owner_address"`
	SupplierAddress  string    `json:"supplier_address"`
	Scope            string    `json:"scope"`
	Remaining        int64     `json:"remaining"`
	OriginalLimit    int64     `json:"original_limit"`
	FaceValue        *big.Int  `json:"face_value"`
	ExpiresAt        time.Time `json:"expires_at"`
	Status           string    `json:"status"`
	Frozen           bool      `json:"frozen"`
	IssuedCount      int64     `json:"issued_count"`
	TotalValueIssued *big.Int  `json:"total_value_issued"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// MintReceipt is the write-once audit row for one mint request. Its unique
// idempotency_key makes a retried mint fail instead of double-issuing.
type MintReceipt struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	CapID          uuid.UUID `json:"cap_id"`
	IssuerAddress  string    `json:"issuer_address"`
	Recipient      string    `json:"recipient"`
	Count          int64     `json:"count"`
	TotalCost      *big.Int  `json:"total_cost"`
	SupplierFee    *big.Int  `json:"supplier_fee"`
	CreatedAt      time.Time `json:"created_at"`
}

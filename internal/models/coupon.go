package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Coupon object states. REDEEMED and EXPIRED are terminal. TRADING is
// authoritative local state: external reconciliation must never overwrite it.
const (
	CouponCreated  = "CREATED"
	CouponTrading  = "TRADING"
	CouponRedeemed = "REDEEMED"
	CouponExpired  = "EXPIRED"
)

// CouponObject is an individually owned unit of value minted under a Cap.
// Remaining is the currently redeemable value, net of fees already skimmed:
// 0 <= remaining <= face_value.
type CouponObject struct {
	ObjectID        string     `json:"object_id"` // ULID
	CapID           uuid.UUID  `json:"cap_id"`
	OwnerAddress    string     `json:"owner_address"`
	SupplierAddress string     `json:"supplier_address"`
	IssuerAddress   string     `json:"issuer_address"`
	FaceValue       *big.Int   `json:"face_value"`
	Remaining       *big.Int   `json:"remaining"`
	ListPrice       *big.Int   `json:"list_price,omitempty"` // captured at listing, not charged at purchase
	TradeCount      int64      `json:"trade_count"`
	State           string     `json:"state"`
	ExpiresAt       time.Time  `json:"expires_at"`
	IssuedAt        time.Time  `json:"issued_at"`
	JTI             *string    `json:"-"`
	TokenExpiresAt  *time.Time `json:"-"`
	UsedAt          *time.Time `json:"used_at,omitempty"`
}

// IsExpired reports whether the object is past its expiry at the given time.
func (c *CouponObject) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TradeTransaction is the write-once audit row for one ownership change. The
// unique idempotency_key is the at-most-once guarantee for a trade request.
type TradeTransaction struct {
	ID                  uuid.UUID `json:"id"`
	IdempotencyKey      string    `json:"idempotency_key"`
	ObjectID            string    `json:"object_id"`
	SellerAddress       string    `json:"seller_address"`
	BuyerAddress        string    `json:"buyer_address"`
	Price               *big.Int  `json:"price"`
	SupplierFee         *big.Int  `json:"supplier_fee"`
	RemainingAfterTrade *big.Int  `json:"remaining_after_trade"`
	ProcessedAt         time.Time `json:"processed_at"`
}

package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Point ledger entry_type values. Every credit or debit writes exactly one
// entry so the movement of every point is reconstructable.
const (
	EntryPermitSale    = "permit_sale"    // supplier earns permit price
	EntryPermitPayment = "permit_payment" // issuer pays permit price
	EntryMintPayment   = "mint_payment"   // issuer pays face value * count into escrow
	EntrySupplierFee   = "supplier_fee"   // 3% skim paid out of escrow
	EntryTradePayment  = "trade_payment"  // buyer pays face value
	EntryTradeEarning  = "trade_earning"  // seller receives face value
	EntryRedeemPayout  = "redeem_payout"  // supplier receives remaining on redemption
	EntryExpireRefund  = "expire_refund"  // issuer refunded by the sweeper
)

// PointEntry is an append-only audit row for a single point account mutation.
type PointEntry struct {
	ID           uuid.UUID `json:"id"`
	Address      string    `json:"address"`
	EntryType    string    `json:"entry_type"`
	Amount       *big.Int  `json:"amount"`
	BalanceAfter *big.Int  `json:"balance_after"`
	RefID        *string   `json:"ref_id,omitempty"` // permit/object/trade id this movement belongs to
	CreatedAt    time.Time `json:"created_at"`
}

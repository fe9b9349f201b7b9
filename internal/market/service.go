// Package market lists coupon objects for sale and settles ownership-transfer
// trades with at-most-once semantics per idempotency key.
package market

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
	"github.com/pointmart/backend/internal/vault"
)

type CouponRepo interface {
	GetByID(ctx context.Context, objectID string) (*models.CouponObject, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, objectID string) (*models.CouponObject, error)
	MarkListed(ctx context.Context, tx pgx.Tx, objectID string, price *big.Int) error
	ApplyTrade(ctx context.Context, tx pgx.Tx, objectID, newOwner string, remaining *big.Int, tradeCount int64) error
	ListTrading(ctx context.Context, now time.Time) ([]*models.CouponObject, error)
	ListByOwner(ctx context.Context, owner string) ([]*models.CouponObject, error)
}

type TradeRepo interface {
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
	InsertTx(ctx context.Context, tx pgx.Tx, t *models.TradeTransaction) error
	ListByObject(ctx context.Context, objectID string) ([]*models.TradeTransaction, error)
}

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service interface {
	// ListForSale moves an owned CREATED object to TRADING at the given
	// asking price. The price is recorded; settlement charges face value.
	ListForSale(ctx context.Context, seller, objectID string, price *big.Int) (*models.CouponObject, error)
	// Buy settles the trade in one transaction. A reused idempotency key
	// fails with ErrDuplicateTransaction before anything moves.
	Buy(ctx context.Context, buyer, objectID, idempotencyKey string) (*models.TradeTransaction, error)

	GetObject(ctx context.Context, objectID string) (*models.CouponObject, error)
	Browse(ctx context.Context) ([]*models.CouponObject, error)
	Inventory(ctx context.Context, owner string) ([]*models.CouponObject, error)
	TradeHistory(ctx context.Context, objectID string) ([]*models.TradeTransaction, error)
}

type service struct {
	db      DB
	coupons CouponRepo
	trades  TradeRepo
	ledger  ledger.Service
	vault   vault.Service
	enqueue chainsync.EnqueueTxFunc
}

func NewService(db DB, coupons CouponRepo, trades TradeRepo, ledgerSvc ledger.Service,
	vaultSvc vault.Service, enqueue chainsync.EnqueueTxFunc) Service {
	return &service{
		db:      db,
		coupons: coupons,
		trades:  trades,
		ledger:  ledgerSvc,
		vault:   vaultSvc,
		enqueue: enqueue,
	}
}

var _ Service = (*service)(nil)

func (s *service) ListForSale(ctx context.Context, seller, objectID string, price *big.Int) (*models.CouponObject, error) {
	if err := money.CheckPositive(price); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	obj, err := s.coupons.GetForUpdate(ctx, tx, objectID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("OBJECT_NOT_FOUND", "coupon object does not exist")
		}
		return nil, err
	}
	if obj.OwnerAddress != seller {
		return nil, apperr.ErrNotOwner
	}
	if obj.State != models.CouponCreated {
		return nil, apperr.ErrWrongState
	}
	if obj.IsExpired(time.Now()) {
		return nil, apperr.ErrExpired
	}
	if err := s.coupons.MarkListed(ctx, tx, objectID, price); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	obj.State = models.CouponTrading
	obj.ListPrice = money.Copy(price)
	return obj, nil
}

// Buy performs the full settlement: buyer pays face value to the seller, the
// 3% supplier fee moves from escrow to the supplier's point account, the
// object's remaining shrinks by the fee, ownership transfers, and the
// write-once trade row is appended. Any failure rolls the whole set back.
func (s *service) Buy(ctx context.Context, buyer, objectID, idempotencyKey string) (*models.TradeTransaction, error) {
	if idempotencyKey == "" {
		return nil, apperr.Validation("MISSING_IDEMPOTENCY_KEY", "idempotency key is required")
	}
	dup, err := s.trades.ExistsByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperr.ErrDuplicateTransaction
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	obj, err := s.coupons.GetForUpdate(ctx, tx, objectID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("OBJECT_NOT_FOUND", "coupon object does not exist")
		}
		return nil, err
	}
	if obj.State != models.CouponTrading {
		return nil, apperr.ErrWrongState
	}
	if obj.OwnerAddress == buyer {
		return nil, apperr.BusinessRule("SELF_PURCHASE", "buyer already owns this object")
	}
	if obj.IsExpired(time.Now()) {
		return nil, apperr.ErrExpired
	}

	seller := obj.OwnerAddress
	price := obj.FaceValue
	fee := money.Fee(price)
	ref := obj.ObjectID

	if err := s.ledger.LockAccounts(ctx, tx, buyer, seller, obj.SupplierAddress); err != nil {
		return nil, err
	}
	if err := s.ledger.Debit(ctx, tx, buyer, price, models.EntryTradePayment, &ref); err != nil {
		return nil, err
	}
	if err := s.ledger.Credit(ctx, tx, seller, price, models.EntryTradeEarning, &ref); err != nil {
		return nil, err
	}
	newRemaining := obj.Remaining
	if fee.Sign() > 0 {
		if err := s.vault.Release(ctx, tx, obj.SupplierAddress, fee); err != nil {
			return nil, err
		}
		if err := s.ledger.Credit(ctx, tx, obj.SupplierAddress, fee, models.EntrySupplierFee, &ref); err != nil {
			return nil, err
		}
		newRemaining = money.Sub(obj.Remaining, fee)
		if money.IsNegative(newRemaining) {
			return nil, apperr.Integrity("REMAINING_NEGATIVE", "trade fee exceeds object remaining", nil)
		}
	}

	if err := s.coupons.ApplyTrade(ctx, tx, obj.ObjectID, buyer, newRemaining, obj.TradeCount+1); err != nil {
		return nil, err
	}

	trade := &models.TradeTransaction{
		ID:                  uuid.New(),
		IdempotencyKey:      idempotencyKey,
		ObjectID:            obj.ObjectID,
		SellerAddress:       seller,
		BuyerAddress:        buyer,
		Price:               money.Copy(price),
		SupplierFee:         fee,
		RemainingAfterTrade: money.Copy(newRemaining),
	}
	if err := s.trades.InsertTx(ctx, tx, trade); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, tx, chainsync.SyncObjectArgs{ObjectID: obj.ObjectID, Event: chainsync.EventTraded}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return trade, nil
}

func (s *service) GetObject(ctx context.Context, objectID string) (*models.CouponObject, error) {
	obj, err := s.coupons.GetByID(ctx, objectID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("OBJECT_NOT_FOUND", "coupon object does not exist")
		}
		return nil, err
	}
	return obj, nil
}

func (s *service) Browse(ctx context.Context) ([]*models.CouponObject, error) {
	return s.coupons.ListTrading(ctx, time.Now())
}

func (s *service) Inventory(ctx context.Context, owner string) ([]*models.CouponObject, error) {
	return s.coupons.ListByOwner(ctx, owner)
}

func (s *service) TradeHistory(ctx context.Context, objectID string) ([]*models.TradeTransaction, error) {
	return s.trades.ListByObject(ctx, objectID)
}

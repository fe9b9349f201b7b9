// Package redeem issues one-time redemption tokens and pays out coupon value
// to the supplier at point-of-sale.
package redeem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/vault"
)

// TokenTTL is the nominal validity window stamped on each token. Single-use
// is what the engine enforces; the TTL is carried for clients and audit.
const TokenTTL = 5 * time.Minute

type CouponRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, objectID string) (*models.CouponObject, error)
	GetByJTIForUpdate(ctx context.Context, tx pgx.Tx, jti string) (*models.CouponObject, error)
	SetToken(ctx context.Context, tx pgx.Tx, objectID, jti string, tokenExpiresAt time.Time) error
	MarkRedeemed(ctx context.Context, tx pgx.Tx, objectID string, usedAt time.Time) error
}

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Token is a freshly minted one-time redemption credential.
type Token struct {
	ObjectID  string    `json:"object_id"`
	JTI       string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service interface {
	// GenerateToken mints a fresh one-time token for an owned CREATED object,
	// replacing any previous token. Only one token is valid per object.
	GenerateToken(ctx context.Context, owner, objectID string) (*Token, error)
	// VerifyAndRedeem pays the object's full remaining value from escrow to
	// the supplier and terminally closes the object.
	VerifyAndRedeem(ctx context.Context, supplier, token string) (*models.CouponObject, error)
}

type service struct {
	db      DB
	coupons CouponRepo
	ledger  ledger.Service
	vault   vault.Service
	enqueue chainsync.EnqueueTxFunc
}

func NewService(db DB, coupons CouponRepo, ledgerSvc ledger.Service, vaultSvc vault.Service,
	enqueue chainsync.EnqueueTxFunc) Service {
	return &service{db: db, coupons: coupons, ledger: ledgerSvc, vault: vaultSvc, enqueue: enqueue}
}

var _ Service = (*service)(nil)

func newJTI() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *service) GenerateToken(ctx context.Context, owner, objectID string) (*Token, error) {
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
	if obj.OwnerAddress != owner {
		return nil, apperr.ErrNotOwner
	}
	if obj.State != models.CouponCreated {
		return nil, apperr.ErrWrongState
	}
	// A paid-out object stays unredeemable even if reconciliation ever walks
	// its state back to CREATED.
	if obj.UsedAt != nil {
		return nil, apperr.ErrWrongState
	}
	if obj.IsExpired(time.Now()) {
		return nil, apperr.ErrExpired
	}

	jti, err := newJTI()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(TokenTTL)
	if err := s.coupons.SetToken(ctx, tx, objectID, jti, expiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Token{ObjectID: objectID, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (s *service) VerifyAndRedeem(ctx context.Context, supplier, token string) (*models.CouponObject, error) {
	if token == "" {
		return nil, apperr.Validation("MISSING_TOKEN", "redemption token is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	obj, err := s.coupons.GetByJTIForUpdate(ctx, tx, token)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("TOKEN_NOT_FOUND", "no object matches this token")
		}
		return nil, err
	}
	if obj.SupplierAddress != supplier {
		return nil, apperr.Authorization("WRONG_SUPPLIER", "token belongs to another supplier's coupon")
	}
	switch obj.State {
	case models.CouponRedeemed, models.CouponTrading, models.CouponExpired:
		return nil, apperr.ErrWrongState
	}
	if obj.IsExpired(time.Now()) {
		return nil, apperr.ErrExpired
	}
	if obj.UsedAt != nil {
		return nil, apperr.BusinessRule("TOKEN_USED", "token was already redeemed")
	}

	payout := obj.Remaining
	ref := obj.ObjectID
	if payout.Sign() > 0 {
		if err := s.vault.Release(ctx, tx, supplier, payout); err != nil {
			return nil, err
		}
		if err := s.ledger.Credit(ctx, tx, supplier, payout, models.EntryRedeemPayout, &ref); err != nil {
			return nil, err
		}
	}
	now := time.Now()
	if err := s.coupons.MarkRedeemed(ctx, tx, obj.ObjectID, now); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, tx, chainsync.SyncObjectArgs{ObjectID: obj.ObjectID, Event: chainsync.EventRedeemed}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	obj.State = models.CouponRedeemed
	obj.Remaining = new(big.Int)
	obj.UsedAt = &now
	return obj, nil
}

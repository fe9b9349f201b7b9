// Package sweeper reclaims value from coupon objects that expired without
// being redeemed: each object's remaining goes back to its minting issuer.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/vault"
)

type CouponRepo interface {
	ListExpiredUnredeemed(ctx context.Context, now time.Time, limit int) ([]*models.CouponObject, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, objectID string) (*models.CouponObject, error)
	MarkExpired(ctx context.Context, tx pgx.Tx, objectID string) error
}

type PermitRepo interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type CapRepo interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const defaultBatchSize = 200

type Service struct {
	db        DB
	coupons   CouponRepo
	permits   PermitRepo
	caps      CapRepo
	ledger    ledger.Service
	vault     vault.Service
	enqueue   chainsync.EnqueueTxFunc
	log       *slog.Logger
	batchSize int
}

func NewService(db DB, coupons CouponRepo, permits PermitRepo, caps CapRepo,
	ledgerSvc ledger.Service, vaultSvc vault.Service,
	enqueue chainsync.EnqueueTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:        db,
		coupons:   coupons,
		permits:   permits,
		caps:      caps,
		ledger:    ledgerSvc,
		vault:     vaultSvc,
		enqueue:   enqueue,
		log:       log,
		batchSize: defaultBatchSize,
	}
}

// Sweep refunds every expired CREATED or TRADING object it finds, then flips
// stale permits and caps to EXPIRED. Each object is its own transaction so
// one failure does not block the rest of the batch. Returns the number of
// objects swept.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	candidates, err := s.coupons.ListExpiredUnredeemed(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, obj := range candidates {
		if err := s.sweepOne(ctx, obj.ObjectID); err != nil {
			s.log.Error("sweep failed for object, continuing", "object_id", obj.ObjectID, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		s.log.Info("expiration sweep complete", "swept", swept, "candidates", len(candidates))
	}

	// Permits and caps hold no escrowed value, so their expiry is a plain
	// status flip.
	permitCount, err := s.permits.ExpireStale(ctx, now)
	if err != nil {
		s.log.Error("stale permit expiry failed", "error", err)
	}
	capCount, err := s.caps.ExpireStale(ctx, now)
	if err != nil {
		s.log.Error("stale cap expiry failed", "error", err)
	}
	if permitCount > 0 || capCount > 0 {
		s.log.Info("stale rights expired", "permits", permitCount, "caps", capCount)
	}
	return swept, nil
}

func (s *Service) sweepOne(ctx context.Context, objectID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	obj, err := s.coupons.GetForUpdate(ctx, tx, objectID)
	if err != nil {
		return err
	}
	// Re-check under the lock: the object may have been redeemed between the
	// scan and now.
	sweepable := obj.State == models.CouponCreated || obj.State == models.CouponTrading
	if !sweepable || !obj.IsExpired(time.Now()) {
		return nil
	}

	refund := obj.Remaining
	ref := obj.ObjectID
	if refund.Sign() > 0 {
		if err := s.vault.Release(ctx, tx, obj.SupplierAddress, refund); err != nil {
			return err
		}
		if err := s.ledger.Credit(ctx, tx, obj.IssuerAddress, refund, models.EntryExpireRefund, &ref); err != nil {
			return err
		}
	}
	if err := s.coupons.MarkExpired(ctx, tx, obj.ObjectID); err != nil {
		return err
	}
	if err := s.enqueue(ctx, tx, chainsync.SyncObjectArgs{ObjectID: obj.ObjectID, Event: chainsync.EventExpired}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

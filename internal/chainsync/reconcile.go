package chainsync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
)

// ReconcileRepo is the narrow write surface the reconciler is allowed: state
// flips only, no balances.
type ReconcileRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, objectID string) (*models.CouponObject, error)
	SetStateIf(ctx context.Context, tx pgx.Tx, objectID, from, to string) error
}

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Reconciler applies observed on-chain facts to the local mirror. It may only
// move objects between CREATED and REDEEMED; TRADING rows are authoritative
// local state (an in-flight sale) and are never overwritten.
type Reconciler struct {
	db      DB
	coupons ReconcileRepo
	log     *slog.Logger
}

func NewReconciler(db DB, coupons ReconcileRepo, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{db: db, coupons: coupons, log: log}
}

// Apply records the observed state for an object. Unknown objects and
// no-op observations are not errors; the chain is eventually consistent.
func (r *Reconciler) Apply(ctx context.Context, objectID, observedState string) error {
	if observedState != models.CouponCreated && observedState != models.CouponRedeemed {
		return apperr.Validation("BAD_OBSERVED_STATE", "reconciliation only accepts CREATED or REDEEMED")
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	obj, err := r.coupons.GetForUpdate(ctx, tx, objectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn("observed unknown object, ignoring", "object_id", objectID)
			return nil
		}
		return err
	}
	if obj.State == models.CouponTrading {
		r.log.Info("object is mid-trade, skipping reconciliation", "object_id", objectID, "observed", observedState)
		return nil
	}
	if obj.State == observedState || obj.State == models.CouponExpired {
		return nil
	}
	if err := r.coupons.SetStateIf(ctx, tx, objectID, obj.State, observedState); err != nil {
		return err
	}
	r.log.Info("reconciled object state from chain", "object_id", objectID, "from", obj.State, "to", observedState)
	return tx.Commit(ctx)
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// ExistsByIdempotencyKey is the pre-mutation duplicate check. The unique
// constraint enforced in InsertTx backstops the race between check and insert.
func (r *TradeRepo) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM trade_transactions WHERE idempotency_key = $1)
	`, key).Scan(&exists)
	return exists, err
}

// InsertTx appends the write-once settlement row. A unique violation on
// idempotency_key surfaces as ErrDuplicateTransaction and rolls the
// enclosing transaction back, so a raced retry settles nothing.
func (r *TradeRepo) InsertTx(ctx context.Context, tx pgx.Tx, t *models.TradeTransaction) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO trade_transactions (id, idempotency_key, object_id, seller_address, buyer_address,
			price, supplier_fee, remaining_after_trade)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING processed_at
	`, t.ID, t.IdempotencyKey, t.ObjectID, t.SellerAddress, t.BuyerAddress,
		money.Format(t.Price), money.Format(t.SupplierFee), money.Format(t.RemainingAfterTrade)).Scan(&t.ProcessedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (r *TradeRepo) ListByObject(ctx context.Context, objectID string) ([]*models.TradeTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, idempotency_key, object_id, seller_address, buyer_address, price, supplier_fee,
			remaining_after_trade, processed_at
		FROM trade_transactions WHERE object_id = $1 ORDER BY processed_at DESC
	`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TradeTransaction
	for rows.Next() {
		var t models.TradeTransaction
		var price, fee, after string
		if err := rows.Scan(&t.ID, &t.IdempotencyKey, &t.ObjectID, &t.SellerAddress, &t.BuyerAddress,
			&price, &fee, &after, &t.ProcessedAt); err != nil {
			return nil, err
		}
		if t.Price, err = money.Parse(price); err != nil {
			return nil, err
		}
		if t.SupplierFee, err = money.Parse(fee); err != nil {
			return nil, err
		}
		if t.RemainingAfterTrade, err = money.Parse(after); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

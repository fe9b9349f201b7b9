package repository

import (
	"context"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

type CouponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *CouponRepo {
	return &CouponRepo{pool: pool}
}

const couponCols = `object_id, cap_id, owner_address, supplier_address, issuer_address, face_value,
	remaining, list_price, trade_count, state, expires_at, issued_at, jti, token_expires_at, used_at`

func scanCoupon(row pgx.Row) (*models.CouponObject, error) {
	var c models.CouponObject
	var faceValue, remaining string
	var listPrice *string
	err := row.Scan(&c.ObjectID, &c.CapID, &c.OwnerAddress, &c.SupplierAddress, &c.IssuerAddress,
		&faceValue, &remaining, &listPrice, &c.TradeCount, &c.State, &c.ExpiresAt, &c.IssuedAt,
		&c.JTI, &c.TokenExpiresAt, &c.UsedAt)
	if err != nil {
		return nil, err
	}
	if c.FaceValue, err = money.Parse(faceValue); err != nil {
		return nil, err
	}
	if c.Remaining, err = money.Parse(remaining); err != nil {
		return nil, err
	}
	if listPrice != nil {
		if c.ListPrice, err = money.Parse(*listPrice); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// InsertTx inserts one freshly minted object inside the mint transaction.
func (r *CouponRepo) InsertTx(ctx context.Context, tx pgx.Tx, c *models.CouponObject) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO coupon_objects (object_id, cap_id, owner_address, supplier_address, issuer_address,
			face_value, remaining, trade_count, state, expires_at, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ObjectID, c.CapID, c.OwnerAddress, c.SupplierAddress, c.IssuerAddress,
		money.Format(c.FaceValue), money.Format(c.Remaining), c.TradeCount, c.State, c.ExpiresAt, c.IssuedAt)
	return err
}

func (r *CouponRepo) GetByID(ctx context.Context, objectID string) (*models.CouponObject, error) {
	return scanCoupon(r.pool.QueryRow(ctx, `
		SELECT `+couponCols+` FROM coupon_objects WHERE object_id = $1
	`, objectID))
}

func (r *CouponRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, objectID string) (*models.CouponObject, error) {
	return scanCoupon(tx.QueryRow(ctx, `
		SELECT `+couponCols+` FROM coupon_objects WHERE object_id = $1 FOR UPDATE
	`, objectID))
}

// GetByJTIForUpdate resolves a redemption token to its object. The unique
// index on jti guarantees at most one row.
func (r *CouponRepo) GetByJTIForUpdate(ctx context.Context, tx pgx.Tx, jti string) (*models.CouponObject, error) {
	return scanCoupon(tx.QueryRow(ctx, `
		SELECT `+couponCols+` FROM coupon_objects WHERE jti = $1 FOR UPDATE
	`, jti))
}

// SetToken stores a fresh one-time token, overwriting any prior one.
func (r *CouponRepo) SetToken(ctx context.Context, tx pgx.Tx, objectID, jti string, tokenExpiresAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects SET jti = $2, token_expires_at = $3 WHERE object_id = $1
	`, objectID, jti, tokenExpiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkListed moves the object to TRADING and records the asking price.
func (r *CouponRepo) MarkListed(ctx context.Context, tx pgx.Tx, objectID string, price *big.Int) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects SET state = $2, list_price = $3 WHERE object_id = $1
	`, objectID, models.CouponTrading, money.Format(price))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ApplyTrade writes the post-settlement object row: new owner, fee-reduced
// remaining, bumped trade_count, state back to CREATED.
func (r *CouponRepo) ApplyTrade(ctx context.Context, tx pgx.Tx, objectID, newOwner string, remaining *big.Int, tradeCount int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects
		SET owner_address = $2, remaining = $3, trade_count = $4, state = $5, list_price = NULL
		WHERE object_id = $1
	`, objectID, newOwner, money.Format(remaining), tradeCount, models.CouponCreated)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkRedeemed closes the object after payout. Terminal.
func (r *CouponRepo) MarkRedeemed(ctx context.Context, tx pgx.Tx, objectID string, usedAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects SET state = $2, remaining = '0', used_at = $3 WHERE object_id = $1
	`, objectID, models.CouponRedeemed, usedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkExpired closes the object after a sweep refund. Terminal. The listing
// price is cleared in case the object expired while up for sale.
func (r *CouponRepo) MarkExpired(ctx context.Context, tx pgx.Tx, objectID string) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects SET state = $2, remaining = '0', list_price = NULL WHERE object_id = $1
	`, objectID, models.CouponExpired)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetStateIf flips state only when the current state matches. Used by chain
// reconciliation; the guard keeps it from ever clobbering another transition.
func (r *CouponRepo) SetStateIf(ctx context.Context, tx pgx.Tx, objectID, from, to string) error {
	result, err := tx.Exec(ctx, `
		UPDATE coupon_objects SET state = $3 WHERE object_id = $1 AND state = $2
	`, objectID, from, to)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListExpiredUnredeemed returns sweep candidates: CREATED or TRADING objects
// past expiry. An object that expires while listed for sale still holds
// escrowed value and must be reclaimed like any other.
func (r *CouponRepo) ListExpiredUnredeemed(ctx context.Context, now time.Time, limit int) ([]*models.CouponObject, error) {
	return r.list(ctx, `
		SELECT `+couponCols+` FROM coupon_objects
		WHERE state IN ($1, $2) AND expires_at <= $3 ORDER BY expires_at LIMIT $4
	`, models.CouponCreated, models.CouponTrading, now, limit)
}

func (r *CouponRepo) ListByOwner(ctx context.Context, owner string) ([]*models.CouponObject, error) {
	return r.list(ctx, `
		SELECT `+couponCols+` FROM coupon_objects WHERE owner_address = $1 ORDER BY issued_at DESC
	`, owner)
}

// ListTrading returns objects currently listed for sale.
func (r *CouponRepo) ListTrading(ctx context.Context, now time.Time) ([]*models.CouponObject, error) {
	return r.list(ctx, `
		SELECT `+couponCols+` FROM coupon_objects
		WHERE state = $1 AND expires_at > $2 ORDER BY issued_at DESC
	`, models.CouponTrading, now)
}

func (r *CouponRepo) list(ctx context.Context, query string, args ...any) ([]*models.CouponObject, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CouponObject
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

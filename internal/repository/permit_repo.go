package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

type PermitRepo struct {
	pool *pgxpool.Pool
}

func NewPermitRepo(pool *pgxpool.Pool) *PermitRepo {
	return &PermitRepo{pool: pool}
}

const permitCols = `id, supplier_address, buyer_address, scope, mint_limit, face_value,
	total_value, price, expires_at, status, redeem_nonce, sold_at, redeemed_at, created_at, updated_at`

func scanPermit(row pgx.Row) (*models.Permit, error) {
	var p models.Permit
	var faceValue, totalValue, price string
	err := row.Scan(&p.ID, &p.SupplierAddress, &p.BuyerAddress, &p.Scope, &p.Limit, &faceValue,
		&totalValue, &price, &p.ExpiresAt, &p.Status, &p.RedeemNonce, &p.SoldAt, &p.RedeemedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.FaceValue, err = money.Parse(faceValue); err != nil {
		return nil, err
	}
	if p.TotalValue, err = money.Parse(totalValue); err != nil {
		return nil, err
	}
	if p.Price, err = money.Parse(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PermitRepo) Create(ctx context.Context, p *models.Permit) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO permits (id, supplier_address, scope, mint_limit, face_value, total_value, price, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, p.ID, p.SupplierAddress, p.Scope, p.Limit, money.Format(p.FaceValue), money.Format(p.TotalValue),
		money.Format(p.Price), p.ExpiresAt, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PermitRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Permit, error) {
	return scanPermit(r.pool.QueryRow(ctx, `
		SELECT `+permitCols+` FROM permits WHERE id = $1
	`, id))
}

// GetForUpdate row-locks the permit for state transitions.
func (r *PermitRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Permit, error) {
	return scanPermit(tx.QueryRow(ctx, `
		SELECT `+permitCols+` FROM permits WHERE id = $1 FOR UPDATE
	`, id))
}

func (r *PermitRepo) MarkSold(ctx context.Context, tx pgx.Tx, id uuid.UUID, buyer string, soldAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE permits SET status = $2, buyer_address = $3, sold_at = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`, id, models.PermitSold, buyer, soldAt, models.PermitListed)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PermitRepo) MarkRedeemed(ctx context.Context, tx pgx.Tx, id uuid.UUID, nonce string, redeemedAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE permits SET status = $2, redeem_nonce = $3, redeemed_at = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`, id, models.PermitRedeemed, nonce, redeemedAt, models.PermitSold)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateStatus covers the EXPIRED/CANCELLED transitions.
func (r *PermitRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	result, err := tx.Exec(ctx, `
		UPDATE permits SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExpireStale flips LISTED and SOLD permits past expiry to EXPIRED. Returns
// the number of rows updated. No value moves; the listing price was only ever
// charged at purchase, and an unsold or unredeemed permit holds none.
func (r *PermitRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE permits SET status = $1, updated_at = now()
		WHERE status IN ($2, $3) AND expires_at <= $4
	`, models.PermitExpired, models.PermitListed, models.PermitSold, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *PermitRepo) ListListed(ctx context.Context, now time.Time) ([]*models.Permit, error) {
	return r.list(ctx, `
		SELECT `+permitCols+` FROM permits
		WHERE status = $1 AND expires_at > $2 ORDER BY created_at DESC
	`, models.PermitListed, now)
}

func (r *PermitRepo) ListBySupplier(ctx context.Context, supplier string) ([]*models.Permit, error) {
	return r.list(ctx, `
		SELECT `+permitCols+` FROM permits WHERE supplier_address = $1 ORDER BY created_at DESC
	`, supplier)
}

func (r *PermitRepo) ListByBuyer(ctx context.Context, buyer string) ([]*models.Permit, error) {
	return r.list(ctx, `
		SELECT `+permitCols+` FROM permits WHERE buyer_address = $1 ORDER BY created_at DESC
	`, buyer)
}

func (r *PermitRepo) list(ctx context.Context, query string, args ...any) ([]*models.Permit, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

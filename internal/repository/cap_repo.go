package repository

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

type CapRepo struct {
	pool *pgxpool.Pool
}

func NewCapRepo(pool *pgxpool.Pool) *CapRepo {
	return &CapRepo{pool: pool}
}

const capCols = `id, permit_id, owner_address, supplier_address, scope, remaining, original_limit,
	face_value, expires_at, status, frozen, issued_count, total_value_issued, created_at, updated_at`

func scanCap(row pgx.Row) (*models.Cap, error) {
	var c models.Cap
	var faceValue, totalIssued string
	err := row.Scan(&c.ID, &c.PermitID, &c.OwnerAddress, &c.SupplierAddress, &c.Scope, &c.Remaining,
		&c.OriginalLimit, &faceValue, &c.ExpiresAt, &c.Status, &c.Frozen, &c.IssuedCount, &totalIssued,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.FaceValue, err = money.Parse(faceValue); err != nil {
		return nil, err
	}
	if c.TotalValueIssued, err = money.Parse(totalIssued); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateTx inserts the cap inside the permit-redemption transaction. The
// unique constraint on permit_id is the one-cap-per-permit guard; a violation
// means the permit was already redeemed.
func (r *CapRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Cap) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO caps (id, permit_id, owner_address, supplier_address, scope, remaining, original_limit,
			face_value, expires_at, status, frozen, issued_count, total_value_issued)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, c.ID, c.PermitID, c.OwnerAddress, c.SupplierAddress, c.Scope, c.Remaining, c.OriginalLimit,
		money.Format(c.FaceValue), c.ExpiresAt, c.Status, c.Frozen, c.IssuedCount,
		money.Format(c.TotalValueIssued)).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.BusinessRule("PERMIT_ALREADY_REDEEMED", "a cap already exists for this permit")
		}
		return err
	}
	return nil
}

func (r *CapRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Cap, error) {
	return scanCap(r.pool.QueryRow(ctx, `
		SELECT `+capCols+` FROM caps WHERE id = $1
	`, id))
}

func (r *CapRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Cap, error) {
	return scanCap(tx.QueryRow(ctx, `
		SELECT `+capCols+` FROM caps WHERE id = $1 FOR UPDATE
	`, id))
}

// ExistsByPermitID reports whether a cap was already created for the permit.
func (r *CapRepo) ExistsByPermitID(ctx context.Context, tx pgx.Tx, permitID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM caps WHERE permit_id = $1)
	`, permitID).Scan(&exists)
	return exists, err
}

// UpdateQuota writes the quota counters after a mint. Call only after
// GetForUpdate in the same transaction.
func (r *CapRepo) UpdateQuota(ctx context.Context, tx pgx.Tx, id uuid.UUID, remaining, issuedCount int64, totalValueIssued *big.Int, status string) error {
	result, err := tx.Exec(ctx, `
		UPDATE caps SET remaining = $2, issued_count = $3, total_value_issued = $4, status = $5, updated_at = now()
		WHERE id = $1
	`, id, remaining, issuedCount, money.Format(totalValueIssued), status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CapRepo) Freeze(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE caps SET frozen = true, status = $2, updated_at = now() WHERE id = $1
	`, id, models.CapFrozen)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExpireStale flips ACTIVE caps past expiry to EXPIRED. Frozen caps keep
// their FROZEN status; it already blocks minting. Returns the number of rows
// updated.
func (r *CapRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE caps SET status = $1, updated_at = now()
		WHERE status = $2 AND expires_at <= $3
	`, models.CapExpired, models.CapActive, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *CapRepo) ListByOwner(ctx context.Context, owner string) ([]*models.Cap, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+capCols+` FROM caps WHERE owner_address = $1 ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Cap
	for rows.Next() {
		c, err := scanCap(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

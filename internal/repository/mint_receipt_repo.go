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

type MintReceiptRepo struct {
	pool *pgxpool.Pool
}

func NewMintReceiptRepo(pool *pgxpool.Pool) *MintReceiptRepo {
	return &MintReceiptRepo{pool: pool}
}

// InsertTx appends the mint receipt. A unique violation on idempotency_key
// maps to ErrDuplicateTransaction and aborts the mint before value moves.
func (r *MintReceiptRepo) InsertTx(ctx context.Context, tx pgx.Tx, m *models.MintReceipt) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO mint_receipts (id, idempotency_key, cap_id, issuer_address, recipient, mint_count, total_cost, supplier_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, m.ID, m.IdempotencyKey, m.CapID, m.IssuerAddress, m.Recipient, m.Count,
		money.Format(m.TotalCost), money.Format(m.SupplierFee)).Scan(&m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

package repository

import (
	"context"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

// EscrowRepo persists the per-supplier custody balances backing unredeemed
// coupon value.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowCols = "supplier_address, balance, total_deposited, total_released, created_at, updated_at"

func scanEscrow(row pgx.Row) (*models.EscrowAccount, error) {
	var a models.EscrowAccount
	var balance, deposited, released string
	if err := row.Scan(&a.SupplierAddress, &balance, &deposited, &released, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Balance, err = money.Parse(balance); err != nil {
		return nil, err
	}
	if a.TotalDeposited, err = money.Parse(deposited); err != nil {
		return nil, err
	}
	if a.TotalReleased, err = money.Parse(released); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *EscrowRepo) Get(ctx context.Context, supplier string) (*models.EscrowAccount, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowCols+` FROM escrow_accounts WHERE supplier_address = $1
	`, supplier))
}

// LockOrCreate row-locks the supplier's escrow account, creating a zero row
// first if absent.
func (r *EscrowRepo) LockOrCreate(ctx context.Context, tx pgx.Tx, supplier string) (*models.EscrowAccount, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_accounts (supplier_address, balance, total_deposited, total_released)
		VALUES ($1, '0', '0', '0')
		ON CONFLICT (supplier_address) DO NOTHING
	`, supplier)
	if err != nil {
		return nil, err
	}
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowCols+` FROM escrow_accounts WHERE supplier_address = $1 FOR UPDATE
	`, supplier))
}

// UpdateBalances writes the balance triple computed by the vault service.
// Call only after LockOrCreate in the same transaction.
func (r *EscrowRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, supplier string, balance, totalDeposited, totalReleased *big.Int) error {
	result, err := tx.Exec(ctx, `
		UPDATE escrow_accounts
		SET balance = $2, total_deposited = $3, total_released = $4, updated_at = now()
		WHERE supplier_address = $1
	`, supplier, money.Format(balance), money.Format(totalDeposited), money.Format(totalReleased))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

// PointAccountRepo persists per-address point balances. Monetary columns are
// base-10 integer TEXT; conversion to big.Int happens here and nowhere else.
type PointAccountRepo struct {
	pool *pgxpool.Pool
}

func NewPointAccountRepo(pool *pgxpool.Pool) *PointAccountRepo {
	return &PointAccountRepo{pool: pool}
}

func scanPointAccount(row pgx.Row) (*models.PointAccount, error) {
	var a models.PointAccount
	var balance, earned, spent string
	if err := row.Scan(&a.Address, &balance, &earned, &spent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Balance, err = money.Parse(balance); err != nil {
		return nil, err
	}
	if a.TotalEarned, err = money.Parse(earned); err != nil {
		return nil, err
	}
	if a.TotalSpent, err = money.Parse(spent); err != nil {
		return nil, err
	}
	return &a, nil
}

const pointAccountCols = "address, balance, total_earned, total_spent, created_at, updated_at"

// GetOrCreate returns the account for address, creating a zero-balance row if
// none exists. Safe to race: the insert is idempotent.
func (r *PointAccountRepo) GetOrCreate(ctx context.Context, address string) (*models.PointAccount, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO point_accounts (address, balance, total_earned, total_spent)
		VALUES ($1, '0', '0', '0')
		ON CONFLICT (address) DO NOTHING
	`, address)
	if err != nil {
		return nil, err
	}
	return scanPointAccount(r.pool.QueryRow(ctx, `
		SELECT `+pointAccountCols+` FROM point_accounts WHERE address = $1
	`, address))
}

func (r *PointAccountRepo) Get(ctx context.Context, address string) (*models.PointAccount, error) {
	return scanPointAccount(r.pool.QueryRow(ctx, `
		SELECT `+pointAccountCols+` FROM point_accounts WHERE address = $1
	`, address))
}

// LockOrCreate row-locks the account for the rest of the transaction,
// creating it first if absent. All balance mutations go through this lock.
func (r *PointAccountRepo) LockOrCreate(ctx context.Context, tx pgx.Tx, address string) (*models.PointAccount, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO point_accounts (address, balance, total_earned, total_spent)
		VALUES ($1, '0', '0', '0')
		ON CONFLICT (address) DO NOTHING
	`, address)
	if err != nil {
		return nil, err
	}
	return scanPointAccount(tx.QueryRow(ctx, `
		SELECT `+pointAccountCols+` FROM point_accounts WHERE address = $1 FOR UPDATE
	`, address))
}

// UpdateBalances writes the full balance triple computed by the service.
// Call only after LockOrCreate in the same transaction.
func (r *PointAccountRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, address string, balance, totalEarned, totalSpent *big.Int) error {
	result, err := tx.Exec(ctx, `
		UPDATE point_accounts
		SET balance = $2, total_earned = $3, total_spent = $4, updated_at = now()
		WHERE address = $1
	`, address, money.Format(balance), money.Format(totalEarned), money.Format(totalSpent))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// PointEntryRepo is the append-only audit log for point movements.
type PointEntryRepo struct {
	pool *pgxpool.Pool
}

func NewPointEntryRepo(pool *pgxpool.Pool) *PointEntryRepo {
	return &PointEntryRepo{pool: pool}
}

func (r *PointEntryRepo) InsertTx(ctx context.Context, tx pgx.Tx, e *models.PointEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO point_entries (id, address, entry_type, amount, balance_after, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.Address, e.EntryType, money.Format(e.Amount), money.Format(e.BalanceAfter), e.RefID).Scan(&e.CreatedAt)
}

func (r *PointEntryRepo) ListByAddress(ctx context.Context, address string, limit int) ([]*models.PointEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, address, entry_type, amount, balance_after, ref_id, created_at
		FROM point_entries WHERE address = $1 ORDER BY created_at DESC LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointEntry
	for rows.Next() {
		var e models.PointEntry
		var amount, after string
		if err := rows.Scan(&e.ID, &e.Address, &e.EntryType, &amount, &after, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = money.Parse(after); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

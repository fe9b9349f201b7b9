// Package ledger is the point ledger: every movement of points between
// addresses goes through Credit/Debit here, under a row lock on the account,
// with an append-only entry per mutation.
package ledger

import (
	"context"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

// AccountRepo is the minimal point-account surface the ledger needs.
type AccountRepo interface {
	GetOrCreate(ctx context.Context, address string) (*models.PointAccount, error)
	Get(ctx context.Context, address string) (*models.PointAccount, error)
	LockOrCreate(ctx context.Context, tx pgx.Tx, address string) (*models.PointAccount, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, address string, balance, totalEarned, totalSpent *big.Int) error
}

// EntryRepo appends audit entries.
type EntryRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.PointEntry) error
	ListByAddress(ctx context.Context, address string, limit int) ([]*models.PointEntry, error)
}

type Service interface {
	GetOrCreate(ctx context.Context, address string) (*models.PointAccount, error)
	// Credit adds amount to the address inside the caller's transaction.
	Credit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int, entryType string, refID *string) error
	// Debit removes amount, failing with ErrInsufficientFunds before any
	// mutation if the balance is too low.
	Debit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int, entryType string, refID *string) error
	// LockAccounts locks all listed accounts in sorted order. Settlements
	// touching several accounts call this first so concurrent settlements
	// cannot deadlock on each other.
	LockAccounts(ctx context.Context, tx pgx.Tx, addresses ...string) error
	History(ctx context.Context, address string, limit int) ([]*models.PointEntry, error)
}

type service struct {
	accounts AccountRepo
	entries  EntryRepo
}

func NewService(accounts AccountRepo, entries EntryRepo) Service {
	return &service{accounts: accounts, entries: entries}
}

var _ Service = (*service)(nil)

func (s *service) GetOrCreate(ctx context.Context, address string) (*models.PointAccount, error) {
	return s.accounts.GetOrCreate(ctx, address)
}

func (s *service) Credit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int, entryType string, refID *string) error {
	if err := money.CheckPositive(amount); err != nil {
		return err
	}
	acc, err := s.accounts.LockOrCreate(ctx, tx, address)
	if err != nil {
		return err
	}
	newBalance := money.Add(acc.Balance, amount)
	newEarned := money.Add(acc.TotalEarned, amount)
	if err := s.accounts.UpdateBalances(ctx, tx, address, newBalance, newEarned, acc.TotalSpent); err != nil {
		return err
	}
	return s.entries.InsertTx(ctx, tx, &models.PointEntry{
		ID:           uuid.New(),
		Address:      address,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: newBalance,
		RefID:        refID,
	})
}

func (s *service) Debit(ctx context.Context, tx pgx.Tx, address string, amount *big.Int, entryType string, refID *string) error {
	if err := money.CheckPositive(amount); err != nil {
		return err
	}
	acc, err := s.accounts.LockOrCreate(ctx, tx, address)
	if err != nil {
		return err
	}
	if money.Cmp(acc.Balance, amount) < 0 {
		return apperr.ErrInsufficientFunds
	}
	newBalance := money.Sub(acc.Balance, amount)
	newSpent := money.Add(acc.TotalSpent, amount)
	if err := s.accounts.UpdateBalances(ctx, tx, address, newBalance, acc.TotalEarned, newSpent); err != nil {
		return err
	}
	return s.entries.InsertTx(ctx, tx, &models.PointEntry{
		ID:           uuid.New(),
		Address:      address,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: newBalance,
		RefID:        refID,
	})
}

func (s *service) LockAccounts(ctx context.Context, tx pgx.Tx, addresses ...string) error {
	uniq := make([]string, 0, len(addresses))
	seen := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		if !seen[a] {
			seen[a] = true
			uniq = append(uniq, a)
		}
	}
	sort.Strings(uniq)
	for _, a := range uniq {
		if _, err := s.accounts.LockOrCreate(ctx, tx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) History(ctx context.Context, address string, limit int) ([]*models.PointEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.entries.ListByAddress(ctx, address, limit)
}

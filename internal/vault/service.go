// Package vault is the escrow vault: per-supplier pooled custody balances
// backing all unredeemed coupon value under that supplier.
package vault

import (
	"context"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

// EscrowRepo is the minimal escrow-account surface the vault needs.
type EscrowRepo interface {
	Get(ctx context.Context, supplier string) (*models.EscrowAccount, error)
	LockOrCreate(ctx context.Context, tx pgx.Tx, supplier string) (*models.EscrowAccount, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, supplier string, balance, totalDeposited, totalReleased *big.Int) error
}

type Service interface {
	Get(ctx context.Context, supplier string) (*models.EscrowAccount, error)
	// Deposit adds amount to the supplier's escrow inside the caller's
	// transaction, creating the account if absent.
	Deposit(ctx context.Context, tx pgx.Tx, supplier string, amount *big.Int) error
	// Release removes amount. A release that would drive the balance negative
	// is ledger corruption and fails with an integrity error, never a floor.
	Release(ctx context.Context, tx pgx.Tx, supplier string, amount *big.Int) error
}

type service struct {
	repo EscrowRepo
}

func NewService(repo EscrowRepo) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Get(ctx context.Context, supplier string) (*models.EscrowAccount, error) {
	return s.repo.Get(ctx, supplier)
}

func (s *service) Deposit(ctx context.Context, tx pgx.Tx, supplier string, amount *big.Int) error {
	if err := money.CheckPositive(amount); err != nil {
		return err
	}
	acc, err := s.repo.LockOrCreate(ctx, tx, supplier)
	if err != nil {
		return err
	}
	newBalance := money.Add(acc.Balance, amount)
	newDeposited := money.Add(acc.TotalDeposited, amount)
	return s.repo.UpdateBalances(ctx, tx, supplier, newBalance, newDeposited, acc.TotalReleased)
}

func (s *service) Release(ctx context.Context, tx pgx.Tx, supplier string, amount *big.Int) error {
	if err := money.CheckPositive(amount); err != nil {
		return err
	}
	acc, err := s.repo.LockOrCreate(ctx, tx, supplier)
	if err != nil {
		return err
	}
	newBalance := money.Sub(acc.Balance, amount)
	if money.IsNegative(newBalance) {
		return apperr.ErrEscrowNegative
	}
	newReleased := money.Add(acc.TotalReleased, amount)
	return s.repo.UpdateBalances(ctx, tx, supplier, newBalance, acc.TotalDeposited, newReleased)
}

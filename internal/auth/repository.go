package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointmart/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, address, role string) (*models.Account, error) {
	a := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Address:      address,
		Role:         role,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, address, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Address, a.Role).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByEmail returns the account for login. Returns nil, nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, address, role, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, address, role, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id))
}

func (r *Repository) GetByAddress(ctx context.Context, address string) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, address, role, created_at, updated_at
		FROM accounts WHERE address = $1
	`, address))
}

func (r *Repository) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Address, &a.Role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

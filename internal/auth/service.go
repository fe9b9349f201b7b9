package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointmart/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidCredentials is returned for a bad email/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Service interface {
	Register(ctx context.Context, email, password, displayName, role string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	// ValidateToken verifies the bearer token and returns the principal the
	// engine will trust for the rest of the request.
	ValidateToken(ctx context.Context, token string) (models.Principal, error)
	GetByAddress(ctx context.Context, address string) (*models.Account, error)
}

type service struct {
	repo   *Repository
	secret []byte
}

func NewService(repo *Repository) *service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretmvp"
	}
	return &service{repo: repo, secret: []byte(secret)}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Address string `json:"addr"`
	Role    string `json:"role"`
}

func validRole(role string) bool {
	switch role {
	case models.RoleSupplier, models.RoleIssuer, models.RoleCustomer:
		return true
	default:
		return false
	}
}

// newAddress generates the account's permanent ledger address.
func newAddress() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf), nil
}

func (s *service) Register(ctx context.Context, email, password, displayName, role string) (*models.Account, error) {
	if !validRole(role) {
		return nil, errors.New("invalid role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	address, err := newAddress()
	if err != nil {
		return nil, err
	}
	acc, err := s.repo.Create(ctx, email, string(hash), displayName, address, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(acc)
}

func (s *service) issueToken(acc *models.Account) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Address: acc.Address,
		Role:    acc.Role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (models.Principal, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return models.Principal{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return models.Principal{}, errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Principal{}, err
	}
	return models.Principal{UserID: id, Address: c.Address, Role: c.Role}, nil
}

func (s *service) GetByAddress(ctx context.Context, address string) (*models.Account, error) {
	return s.repo.GetByAddress(ctx, address)
}

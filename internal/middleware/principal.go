// Package middleware attaches a verified principal to each request. Two
// paths: bearer JWT for interactive users, API key for supplier terminals.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/repository"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator verifies a bearer JWT and returns the principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Principal, error)
}

// APIKeyRepo is the lookup surface for API key auth.
type APIKeyRepo interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*repository.APIKeyWithAccount, error)
}

// JWTAuth authenticates requests carrying a bearer JWT and stores the
// principal in the request context.
func JWTAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			p, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// APIKeyAuth authenticates requests by hashing the bearer token (SHA-256)
// and looking it up in api_keys. Used on the point-of-sale redemption route.
func APIKeyAuth(apiKeyRepo APIKeyRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			result, err := apiKeyRepo.FindByKeyHash(r.Context(), hashKey(raw))
			if err != nil {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			p := models.Principal{
				UserID:  result.Account.ID,
				Address: result.Account.Address,
				Role:    result.Account.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals whose role is not in the allowed set.
// Admins pass everywhere.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromCtx(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !allowed[p.Role] && !p.IsAdmin() {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromCtx returns the authenticated principal, if any.
func PrincipalFromCtx(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(models.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

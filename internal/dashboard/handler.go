// Package dashboard serves the authenticated account surface: profile,
// point balance and history, escrow view, and point-of-sale API keys.
package dashboard

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointmart/backend/internal/auth"
	"github.com/pointmart/backend/internal/handlers"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/middleware"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
	"github.com/pointmart/backend/internal/repository"
	"github.com/pointmart/backend/internal/vault"
)

type Handler struct {
	authSvc auth.Service
	ledger  ledger.Service
	vault   vault.Service
	apiKeyR *repository.APIKeyRepo
	log     *slog.Logger
}

func NewHandler(authSvc auth.Service, ledgerSvc ledger.Service, vaultSvc vault.Service,
	apiKeyR *repository.APIKeyRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{authSvc: authSvc, ledger: ledgerSvc, vault: vaultSvc, apiKeyR: apiKeyR, log: log}
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acc, err := h.authSvc.GetByAddress(r.Context(), p.Address)
	if err != nil {
		h.log.Error("get account failed", "error", err)
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	points, err := h.ledger.GetOrCreate(r.Context(), p.Address)
	if err != nil {
		h.log.Error("get point account failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"id":           acc.ID,
		"email":        acc.Email,
		"display_name": acc.DisplayName,
		"address":      acc.Address,
		"role":         acc.Role,
		"balance":      money.Format(points.Balance),
		"total_earned": money.Format(points.TotalEarned),
		"total_spent":  money.Format(points.TotalSpent),
		"created_at":   acc.CreatedAt,
	})
}

// GET /api/v1/account/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.ledger.History(r.Context(), p.Address, 100)
	if err != nil {
		h.log.Error("list point entries failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.PointEntry{}
	}
	handlers.WriteJSON(w, http.StatusOK, entries)
}

// GET /api/v1/account/escrow — the supplier's custody balance.
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if p.Role != models.RoleSupplier && !p.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	acc, err := h.vault.Get(r.Context(), p.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			handlers.WriteJSON(w, http.StatusOK, map[string]string{
				"supplier_address": p.Address,
				"balance":          "0",
				"total_deposited":  "0",
				"total_released":   "0",
			})
			return
		}
		h.log.Error("get escrow failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, acc)
}

// GET /api/v1/api-keys
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	keys, err := h.apiKeyR.ListByAccountID(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("list api keys failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, keys)
}

// POST /api/v1/api-keys — suppliers mint keys for their POS terminals. The
// raw key is shown exactly once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if p.Role != models.RoleSupplier && !p.IsAdmin() {
		http.Error(w, "only suppliers can create api keys", http.StatusForbidden)
		return
	}
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	rawKey := "pmk_" + hex.EncodeToString(rawBytes)
	hash := sha256.Sum256([]byte(rawKey))

	k := &models.APIKey{
		ID:        uuid.New(),
		AccountID: p.UserID,
		KeyHash:   hex.EncodeToString(hash[:]),
		KeyPrefix: rawKey[:12],
		IsActive:  true,
	}
	if err := h.apiKeyR.Create(r.Context(), k); err != nil {
		h.log.Error("create api key failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         k.ID,
		"key_prefix": k.KeyPrefix,
		"is_active":  k.IsActive,
		"raw_key":    rawKey,
	})
}

// DELETE /api/v1/api-keys/{id}
func (h *Handler) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid key ID", http.StatusBadRequest)
		return
	}
	if err := h.apiKeyR.Deactivate(r.Context(), keyID, p.UserID); err != nil {
		h.log.Error("deactivate api key failed", "error", err)
		http.Error(w, "deactivate failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

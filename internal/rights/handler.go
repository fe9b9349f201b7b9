package rights

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointmart/backend/internal/handlers"
	"github.com/pointmart/backend/internal/middleware"
	"github.com/pointmart/backend/internal/money"
)

// Request/response structs use snake_case JSON. Point amounts travel as
// base-10 integer strings.

type ListPermitRequest struct {
	Scope     string    `json:"scope"`
	Limit     int64     `json:"limit"`
	FaceValue string    `json:"face_value"`
	Price     string    `json:"price"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RedeemPermitRequest struct {
	Nonce string `json:"nonce"`
}

type MintRequest struct {
	Recipient      string `json:"recipient"`
	Count          int64  `json:"count"`
	IdempotencyKey string `json:"idempotency_key"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/permits
func (h *Handler) ListPermit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req ListPermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	faceValue, err := money.Parse(req.FaceValue)
	if err != nil {
		http.Error(w, "invalid face_value", http.StatusBadRequest)
		return
	}
	price, err := money.Parse(req.Price)
	if err != nil {
		http.Error(w, "invalid price", http.StatusBadRequest)
		return
	}
	permit, err := h.svc.ListPermit(r.Context(), p.Address, ListPermitInput{
		Scope:     req.Scope,
		Limit:     req.Limit,
		FaceValue: faceValue,
		Price:     price,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, permit)
}

// GET /api/v1/permits — listed permits open for purchase.
func (h *Handler) BrowsePermits(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.BrowsePermits(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/permits/{id}
func (h *Handler) GetPermit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid permit ID", http.StatusBadRequest)
		return
	}
	permit, err := h.svc.GetPermit(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, permit)
}

// POST /api/v1/permits/{id}/buy
func (h *Handler) BuyPermit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid permit ID", http.StatusBadRequest)
		return
	}
	permit, err := h.svc.BuyPermit(r.Context(), p.Address, id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, permit)
}

// POST /api/v1/permits/{id}/cancel
func (h *Handler) CancelPermit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid permit ID", http.StatusBadRequest)
		return
	}
	if err := h.svc.CancelPermit(r.Context(), p.Address, id); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/permits/{id}/redeem — converts a purchased permit into a Cap.
func (h *Handler) RedeemPermit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid permit ID", http.StatusBadRequest)
		return
	}
	var req RedeemPermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Nonce == "" {
		http.Error(w, "nonce is required", http.StatusBadRequest)
		return
	}
	capObj, err := h.svc.RedeemPermit(r.Context(), p.Address, id, req.Nonce)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, capObj)
}

// GET /api/v1/caps — the caller's caps.
func (h *Handler) ListCaps(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	caps, err := h.svc.ListCapsByOwner(r.Context(), p.Address)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, caps)
}

// GET /api/v1/caps/{id}
func (h *Handler) GetCap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid cap ID", http.StatusBadRequest)
		return
	}
	capObj, err := h.svc.GetCap(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, capObj)
}

// POST /api/v1/caps/{id}/mint
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid cap ID", http.StatusBadRequest)
		return
	}
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		http.Error(w, "idempotency_key is required", http.StatusBadRequest)
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = p.Address
	}
	objects, err := h.svc.MintWithCap(r.Context(), p.Address, id, recipient, req.Count, req.IdempotencyKey)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, objects)
}

// POST /api/v1/caps/{id}/freeze — supplier or admin halts further minting.
func (h *Handler) FreezeCap(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid cap ID", http.StatusBadRequest)
		return
	}
	if err := h.svc.FreezeCap(r.Context(), p, id); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

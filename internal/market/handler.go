package market

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pointmart/backend/internal/handlers"
	"github.com/pointmart/backend/internal/middleware"
	"github.com/pointmart/backend/internal/money"
)

type ListForSaleRequest struct {
	Price string `json:"price"`
}

type BuyRequest struct {
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

// GET /api/v1/objects — objects currently listed for trade.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Browse(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/objects/mine — the caller's inventory.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.Inventory(r.Context(), p.Address)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/objects/{objectID}
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.GetObject(r.Context(), chi.URLParam(r, "objectID"))
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, obj)
}

// POST /api/v1/objects/{objectID}/list
func (h *Handler) ListForSale(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req ListForSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	price, err := money.Parse(req.Price)
	if err != nil {
		http.Error(w, "invalid price", http.StatusBadRequest)
		return
	}
	obj, err := h.svc.ListForSale(r.Context(), p.Address, chi.URLParam(r, "objectID"), price)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, obj)
}

// POST /api/v1/objects/{objectID}/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		http.Error(w, "idempotency_key is required", http.StatusBadRequest)
		return
	}
	trade, err := h.svc.Buy(r.Context(), p.Address, chi.URLParam(r, "objectID"), req.IdempotencyKey)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, trade)
}

// GET /api/v1/objects/{objectID}/trades
func (h *Handler) TradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.TradeHistory(r.Context(), chi.URLParam(r, "objectID"))
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, trades)
}

package chainsync

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pointmart/backend/internal/handlers"
)

type ObservationRequest struct {
	ObjectID string `json:"object_id"`
	State    string `json:"state"`
}

// Handler receives chain observations from the mirror gateway. Admin only.
type Handler struct {
	rec *Reconciler
	log *slog.Logger
}

func NewHandler(rec *Reconciler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{rec: rec, log: log}
}

// POST /api/v1/chain/observations
func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ObjectID == "" || req.State == "" {
		http.Error(w, "object_id and state are required", http.StatusBadRequest)
		return
	}
	if err := h.rec.Apply(r.Context(), req.ObjectID, req.State); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

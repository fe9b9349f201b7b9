// Package handlers holds the shared transport helpers: JSON rendering and
// the mapping from engine error kinds to HTTP statuses.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pointmart/backend/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON renders v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps engine errors onto the HTTP surface. Integrity errors are
// the only 500s that also page: they mean the ledger itself is suspect.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)
	switch kind {
	case apperr.KindValidation, apperr.KindBusinessRule:
		status := http.StatusBadRequest
		if code == "DUPLICATE_TRANSACTION" {
			status = http.StatusConflict
		}
		WriteJSON(w, status, errorBody{Error: err.Error(), Code: code})
	case apperr.KindNotFound:
		WriteJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: code})
	case apperr.KindAuthorization:
		WriteJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: code})
	case apperr.KindIntegrity:
		if log != nil {
			log.Error("LEDGER INTEGRITY VIOLATION", "error", err)
		}
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: code})
	default:
		if log != nil {
			log.Error("unexpected error", "error", err)
		}
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vinilomarket/vinilo/internal/store"
)

// storeError maps a store-layer error to an HTTP response. Conflicts (turn
// violations, terminal states, exhausted stock) are 409 so clients can tell
// a losing race from bad input.
func storeError(w http.ResponseWriter, err error) {
	var stockErr *store.InsufficientStockError
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTurnViolation):
		jsonError(w, http.StatusConflict, "not your turn")
	case errors.Is(err, store.ErrTerminalState):
		jsonError(w, http.StatusConflict, "already in a final state")
	case errors.As(err, &stockErr):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error": "insufficient stock",
			"items": stockErr.ItemIDs,
		})
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

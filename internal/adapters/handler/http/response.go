package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response",
			"event", "http_encode_failed",
			"module", "adapters/handler/http",
			"layer", "transport",
			"error", err.Error(),
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeLedgerError maps ledger errors to status codes. Storage failures are
// the only retryable kind and carry a Retry-After hint.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDeadlinePassed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrDuplicateSubmitter), errors.Is(err, domain.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProposalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, domain.ErrStorageUnavailable.Error())
	default:
		slog.Error("unhandled ledger error",
			"event", "http_unhandled_error",
			"module", "adapters/handler/http",
			"layer", "transport",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads at most maxBodyBytes and reports whether the handler
// may continue. On failure the error response is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

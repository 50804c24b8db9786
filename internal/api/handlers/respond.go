package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("handlers: encode response", "err", err)
	}
}

// writeError maps service errors to status codes. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Error()
		if ve.Field == "file_name" {
			status = http.StatusConflict
		}
	case errors.Is(err, core.ErrDocumentNotFound),
		errors.Is(err, core.ErrBatchNotFound),
		errors.Is(err, core.ErrVersionNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrEmbeddingQuotaExceeded):
		status, msg = http.StatusTooManyRequests, err.Error()
	default:
		slog.Error("handlers: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

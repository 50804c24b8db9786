package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type BatchHandler struct {
	batches *services.BatchService
}

func NewBatchHandler(batches *services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// UploadBatch accepts every "files" part of a multipart body as one batch.
func (h *BatchHandler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, r, core.NewValidationError("files", "invalid multipart body"))
		return
	}
	headers := r.MultipartForm.File["files"]
	uploads := make([]services.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, err)
			return
		}
		upload, err := readUpload(f, fh)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upload.Language = r.FormValue("language")
		uploads = append(uploads, upload)
	}

	batch, err := h.batches.BatchUpload(r.Context(), userID, uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

type batchResponse struct {
	*models.Batch
	Documents []models.Document `json:"documents"`
}

func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	batch, docs, err := h.batches.GetBatch(r.Context(), userID, chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Batch: batch, Documents: docs})
}

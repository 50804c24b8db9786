package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

// multipart bodies above this are spooled to disk by net/http
const maxMemory = 32 << 20

type DocumentHandler struct {
	docs     *services.DocumentService
	versions *services.VersionService
}

func NewDocumentHandler(docs *services.DocumentService, versions *services.VersionService) *DocumentHandler {
	return &DocumentHandler{docs: docs, versions: versions}
}

// UploadDocument stores the file and queues it for processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, r, core.NewValidationError("file", "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.NewValidationError("file", "missing file field"))
		return
	}
	upload, err := readUpload(file, header)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upload.Language = r.FormValue("language")

	doc, err := h.docs.Upload(r.Context(), userID, upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.docs.Process(r.Context(), userID, doc.ID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ProcessDocument requeues a document, typically one that failed.
func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.docs.Process(r.Context(), userID, chi.URLParam(r, "documentID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// UpdateDocument replaces the file and reindexes the changed chunks.
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, r, core.NewValidationError("file", "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.NewValidationError("file", "missing file field"))
		return
	}
	upload, err := readUpload(file, header)
	if err != nil {
		writeError(w, r, err)
		return
	}

	changed, err := h.docs.Update(r.Context(), userID, chi.URLParam(r, "documentID"), upload.Data, r.FormValue("change_summary"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if changed {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]bool{"changed": changed})
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.docs.Delete(r.Context(), userID, chi.URLParam(r, "documentID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) GetVersions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	versions, err := h.versions.GetVersions(r.Context(), userID, chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

type rollbackRequest struct {
	Version int `json:"version"`
}

func (h *DocumentHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version <= 0 {
		writeError(w, r, core.NewValidationError("version", "a positive version is required"))
		return
	}

	if err := h.versions.Rollback(r.Context(), userID, chi.URLParam(r, "documentID"), req.Version); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "version": strconv.Itoa(req.Version)})
}

func readUpload(file multipart.File, header *multipart.FileHeader) (services.FileUpload, error) {
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return services.FileUpload{}, fmt.Errorf("read upload: %w", err)
	}
	return services.FileUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type DocumentService struct {
	db         core.DbClient
	storage    core.ObjectClient
	index      core.VectorIndex
	dispatcher Dispatcher
	versions   *VersionService
	limits     UploadLimits
	defaults   models.ProcessingRules
	logger     *slog.Logger
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	index core.VectorIndex,
	dispatcher Dispatcher,
	versions *VersionService,
	limits UploadLimits,
	defaults models.ProcessingRules,
) *DocumentService {
	return &DocumentService{
		db:         db,
		storage:    storage,
		index:      index,
		dispatcher: dispatcher,
		versions:   versions,
		limits:     limits,
		defaults:   defaults,
		logger:     slog.Default().With("component", "document-service"),
	}
}

// Upload validates f, creates a pending document and stores its file. Nothing
// is written when validation fails.
func (s *DocumentService) Upload(ctx context.Context, userID string, f FileUpload) (*models.Document, error) {
	if err := s.limits.normalize(&f); err != nil {
		return nil, err
	}
	count, err := s.db.CountDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.limits.checkCount(count, 1); err != nil {
		return nil, err
	}
	exists, err := s.db.DocumentNameExists(ctx, userID, f.FileName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.NewValidationError("file_name", "a document named %q already exists", f.FileName)
	}

	space, err := s.db.GetOrCreateSpace(ctx, userID, s.defaults)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		SpaceID:     space.ID,
		FileName:    f.FileName,
		StorageKey:  objectclient.DocumentKey(userID, docID, f.FileName),
		ContentType: f.ContentType,
		SizeBytes:   int64(len(f.Data)),
		Language:    f.Language,
		Status:      models.StatusPending,
		Version:     1,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if _, err := s.storage.UploadFile(ctx, doc.StorageKey, f.Data, f.ContentType); err != nil {
		if derr := s.db.DeleteDocument(context.WithoutCancel(ctx), doc.ID); derr != nil {
			s.logger.Error("could not remove document after failed upload", "document_id", doc.ID, "err", derr)
		}
		return nil, fmt.Errorf("store file: %w", err)
	}

	s.logger.Info("document uploaded", "document_id", doc.ID, "user_id", userID, "size", doc.SizeBytes)
	return doc, nil
}

// Process schedules a full pipeline run, for fresh uploads and for retrying failed documents.
func (s *DocumentService) Process(ctx context.Context, userID, documentID string) error {
	if _, err := s.Get(ctx, userID, documentID); err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, ingestion_engine.Job{DocumentID: documentID, Mode: ingestion_engine.ModeFull})
}

// Update replaces a document's file and reindexes it. Content identical to the
// live file is a no-op and reports false, including while an earlier update of
// the same content is still queued.
func (s *DocumentService) Update(ctx context.Context, userID, documentID string, data []byte, changeSummary string) (bool, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return false, err
	}
	if doc.Status == models.StatusProcessing {
		return false, core.NewValidationError("status", "document %s is being processed", doc.ID)
	}

	f := FileUpload{FileName: doc.FileName, ContentType: doc.ContentType, Data: data}
	if err := s.limits.normalize(&f); err != nil {
		return false, err
	}

	current, err := s.storage.GetFile(ctx, doc.StorageKey)
	if err != nil {
		return false, fmt.Errorf("read live file: %w", err)
	}
	if ingestion_engine.FileHash(data) == ingestion_engine.FileHash(current) {
		s.logger.Info("update skipped, content unchanged", "document_id", doc.ID)
		return false, nil
	}

	if _, err := s.versions.Replace(ctx, doc, current, data, changeSummary); err != nil {
		return false, fmt.Errorf("replace file: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, ingestion_engine.Job{DocumentID: doc.ID, Mode: ingestion_engine.ModeReindex}); err != nil {
		return true, err
	}
	return true, nil
}

// Delete removes the document's vectors, then its rows, then its files.
// File removal is best-effort.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	versions, err := s.db.ListDocumentVersions(ctx, doc.ID)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("%w: %v", core.ErrVectorIndexWrite, err)
	}
	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}

	keys := []string{doc.StorageKey}
	for _, v := range versions {
		keys = append(keys, v.FilePath)
	}
	for _, key := range keys {
		if err := s.storage.DeleteFile(ctx, key); err != nil && !errors.Is(err, core.ErrObjectNotFound) {
			s.logger.Warn("could not delete file", "document_id", doc.ID, "key", key, "err", err)
		}
	}
	s.logger.Info("document deleted", "document_id", doc.ID)
	return nil
}

// Get returns a document owned by userID.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// VersionService archives files before they are overwritten and restores them.
type VersionService struct {
	db         core.DbClient
	storage    core.ObjectClient
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewVersionService(db core.DbClient, storage core.ObjectClient, dispatcher Dispatcher) *VersionService {
	return &VersionService{
		db:         db,
		storage:    storage,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "version-store"),
	}
}

// Replace archives current, the bytes now live, under the document's current
// version number and makes next the live file. The archived copy is stored
// before the live file is overwritten and the version row is written last, so
// a failed step undoes the earlier ones instead of leaving a bumped version
// without its file.
func (s *VersionService) Replace(ctx context.Context, doc *models.Document, current, next []byte, changeSummary string) (*models.DocumentVersion, error) {
	chunks, err := s.db.CountChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	key := objectclient.VersionKey(doc.UserID, doc.ID, doc.Version, doc.FileName)
	if _, err := s.storage.UploadFile(ctx, key, current, doc.ContentType); err != nil {
		return nil, fmt.Errorf("store archived file: %w", err)
	}
	if _, err := s.storage.UploadFile(ctx, doc.StorageKey, next, doc.ContentType); err != nil {
		s.discard(ctx, doc.ID, key)
		return nil, fmt.Errorf("store live file: %w", err)
	}

	v := &models.DocumentVersion{
		DocumentID:    doc.ID,
		FilePath:      key,
		FileHash:      ingestion_engine.FileHash(current),
		ChunkCount:    chunks,
		ChangeSummary: changeSummary,
	}
	version, err := s.db.ArchiveVersion(ctx, v)
	if err != nil {
		restoreCtx := context.WithoutCancel(ctx)
		if _, rerr := s.storage.UploadFile(restoreCtx, doc.StorageKey, current, doc.ContentType); rerr != nil {
			s.logger.Error("could not restore live file", "document_id", doc.ID, "err", rerr)
		}
		s.discard(ctx, doc.ID, key)
		return nil, err
	}
	doc.Version = version

	s.logger.Info("version archived", "document_id", doc.ID, "version", v.VersionNumber, "chunks", chunks)
	return v, nil
}

func (s *VersionService) discard(ctx context.Context, documentID, key string) {
	if err := s.storage.DeleteFile(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("could not remove archived file", "document_id", documentID, "key", key, "err", err)
	}
}

// Rollback makes version versionNumber the live file again and reprocesses it
// from scratch. The current file is archived first, so the document's version
// goes up by one. A missing archive is final.
func (s *VersionService) Rollback(ctx context.Context, userID, documentID string, versionNumber int) error {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil || doc.UserID != userID {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}
	if doc.Status == models.StatusProcessing {
		return core.NewValidationError("status", "document %s is being processed", doc.ID)
	}

	v, err := s.db.GetDocumentVersion(ctx, doc.ID, versionNumber)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: %s v%d", core.ErrVersionNotFound, doc.ID, versionNumber)
	}

	data, err := s.storage.GetFile(ctx, v.FilePath)
	if errors.Is(err, core.ErrObjectNotFound) {
		msg := fmt.Sprintf("archived file for version %d is missing", versionNumber)
		if merr := s.db.MarkDocumentFailed(ctx, doc.ID, msg); merr != nil {
			s.logger.Error("could not mark document failed", "document_id", doc.ID, "err", merr)
		}
		return fmt.Errorf("%w: %s", core.ErrVersionNotFound, msg)
	}
	if err != nil {
		return fmt.Errorf("read archived file: %w", err)
	}

	current, err := s.storage.GetFile(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("read live file: %w", err)
	}
	if _, err := s.Replace(ctx, doc, current, data, fmt.Sprintf("before rollback to version %d", versionNumber)); err != nil {
		return fmt.Errorf("restore version %d: %w", versionNumber, err)
	}

	s.logger.Info("rolling back", "document_id", doc.ID, "to_version", versionNumber, "new_version", doc.Version)
	return s.dispatcher.Dispatch(ctx, ingestion_engine.Job{DocumentID: doc.ID, Mode: ingestion_engine.ModeFull})
}

// GetVersions lists archived versions, newest first.
func (s *VersionService) GetVersions(ctx context.Context, userID, documentID string) ([]models.DocumentVersion, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}
	return s.db.ListDocumentVersions(ctx, doc.ID)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// BatchService accepts multi-document uploads and processes the documents
// concurrently on a bounded worker pool.
type BatchService struct {
	db        core.DbClient
	storage   core.ObjectClient
	processor Processor
	limits    UploadLimits
	defaults  models.ProcessingRules
	timeout   time.Duration

	pool     *ants.Pool
	inflight sync.WaitGroup
	logger   *slog.Logger
}

func NewBatchService(
	db core.DbClient,
	storage core.ObjectClient,
	processor Processor,
	limits UploadLimits,
	defaults models.ProcessingRules,
	workers int,
	timeout time.Duration,
) (*BatchService, error) {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}
	return &BatchService{
		db:        db,
		storage:   storage,
		processor: processor,
		limits:    limits,
		defaults:  defaults,
		timeout:   timeout,
		pool:      pool,
		logger:    slog.Default().With("component", "batch"),
	}, nil
}

// BatchUpload validates every file, records the batch with one pending
// document per file, stores the files and starts processing in the
// background. A single invalid file rejects the whole batch before anything
// is written.
func (s *BatchService) BatchUpload(ctx context.Context, userID string, files []FileUpload) (*models.Batch, error) {
	if len(files) == 0 {
		return nil, core.NewValidationError("files", "batch is empty")
	}

	seen := make(map[string]bool, len(files))
	for i := range files {
		if err := s.limits.normalize(&files[i]); err != nil {
			return nil, err
		}
		// Same rule as DocumentNameExists.
		name := strings.ToLower(files[i].FileName)
		if seen[name] {
			return nil, core.NewValidationError("file_name", "%q appears more than once", files[i].FileName)
		}
		seen[name] = true

		exists, err := s.db.DocumentNameExists(ctx, userID, files[i].FileName)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, core.NewValidationError("file_name", "a document named %q already exists", files[i].FileName)
		}
	}
	count, err := s.db.CountDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.limits.checkCount(count, len(files)); err != nil {
		return nil, err
	}

	space, err := s.db.GetOrCreateSpace(ctx, userID, s.defaults)
	if err != nil {
		return nil, err
	}

	batch := &models.Batch{
		ID:         uuid.NewString(),
		UserID:     userID,
		TotalCount: len(files),
		Status:     models.StatusPending,
	}
	docs := make([]*models.Document, len(files))
	for i, f := range files {
		docID := uuid.NewString()
		docs[i] = &models.Document{
			ID:          docID,
			UserID:      userID,
			SpaceID:     space.ID,
			BatchID:     &batch.ID,
			FileName:    f.FileName,
			StorageKey:  objectclient.DocumentKey(userID, docID, f.FileName),
			ContentType: f.ContentType,
			SizeBytes:   int64(len(f.Data)),
			Language:    f.Language,
			Status:      models.StatusPending,
			Version:     1,
		}
	}
	if err := s.db.CreateBatchWithDocuments(ctx, batch, docs); err != nil {
		return nil, err
	}
	if err := s.db.SetBatchStatus(ctx, batch.ID, models.StatusProcessing); err != nil {
		return nil, err
	}
	batch.Status = models.StatusProcessing

	var ready []string
	for i, f := range files {
		doc := docs[i]
		if _, err := s.storage.UploadFile(ctx, doc.StorageKey, f.Data, f.ContentType); err != nil {
			s.logger.Error("batch file upload failed", "batch_id", batch.ID, "document_id", doc.ID, "err", err)
			s.recordFailure(batch.ID, doc.ID, fmt.Sprintf("file upload failed: %v", err))
			continue
		}
		ready = append(ready, doc.ID)
	}

	s.logger.Info("batch accepted", "batch_id", batch.ID, "user_id", userID, "documents", len(files), "stored", len(ready))

	s.inflight.Add(len(ready))
	go s.fanOut(batch.ID, ready)

	return batch, nil
}

// fanOut submits one task per document. Submit blocks while the pool is full.
func (s *BatchService) fanOut(batchID string, docIDs []string) {
	for _, id := range docIDs {
		docID := id
		err := s.pool.Submit(func() {
			defer s.inflight.Done()
			s.processOne(batchID, docID)
		})
		if err != nil {
			s.inflight.Done()
			s.logger.Error("could not schedule document", "batch_id", batchID, "document_id", docID, "err", err)
			s.recordFailure(batchID, docID, fmt.Sprintf("could not schedule processing: %v", err))
		}
	}
}

// processOne runs detached from the upload request.
func (s *BatchService) processOne(batchID, docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	completed, failed := 1, 0
	if err := s.processor.Process(ctx, docID); err != nil {
		s.logger.Warn("batch document failed", "batch_id", batchID, "document_id", docID, "err", err)
		completed, failed = 0, 1
	}

	b, err := s.db.UpdateBatchProgress(context.Background(), batchID, completed, failed)
	if err != nil {
		s.logger.Error("could not update batch progress", "batch_id", batchID, "err", err)
		return
	}
	if b.Status != models.StatusProcessing {
		s.logger.Info("batch finished", "batch_id", batchID, "status", b.Status,
			"completed", b.CompletedCount, "failed", b.FailedCount)
	}
}

func (s *BatchService) recordFailure(batchID, docID, msg string) {
	ctx := context.Background()
	if err := s.db.MarkDocumentFailed(ctx, docID, msg); err != nil {
		s.logger.Error("could not mark document failed", "document_id", docID, "err", err)
	}
	if _, err := s.db.UpdateBatchProgress(ctx, batchID, 0, 1); err != nil {
		s.logger.Error("could not update batch progress", "batch_id", batchID, "err", err)
	}
}

// GetBatch returns a batch with its documents, scoped to userID.
func (s *BatchService) GetBatch(ctx context.Context, userID, batchID string) (*models.Batch, []models.Document, error) {
	b, err := s.db.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil || b.UserID != userID {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrBatchNotFound, batchID)
	}
	docs, err := s.db.ListDocumentsByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return b, docs, nil
}

// Wait blocks until every submitted document has been processed.
func (s *BatchService) Wait() {
	s.inflight.Wait()
}

// Close waits for in-flight work and releases the pool.
func (s *BatchService) Close() {
	s.inflight.Wait()
	s.pool.Release()
}

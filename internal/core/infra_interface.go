package core

import (
	"context"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// SpaceStore persists knowledge spaces.
type SpaceStore interface {
	// GetOrCreateSpace returns the user's space, creating it with defaults on first use.
	GetOrCreateSpace(ctx context.Context, userID string, defaults models.ProcessingRules) (*models.KnowledgeSpace, error)
}

// DocumentStore persists documents and their lifecycle fields.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	CountDocumentsByUser(ctx context.Context, userID string) (int, error)
	// DocumentNameExists matches file names case-insensitively.
	DocumentNameExists(ctx context.Context, userID, fileName string) (bool, error)
	DeleteDocument(ctx context.Context, id string) error

	MarkDocumentProcessing(ctx context.Context, id string) error
	UpdateDocumentProgress(ctx context.Context, id string, progress int, stage string) error
	MarkDocumentFailed(ctx context.Context, id string, message string) error
	MarkDocumentCompleted(ctx context.Context, id string, chunkCount int, fileHash string) error
}

// ChunkStore reads chunk rows and opens write transactions over them.
type ChunkStore interface {
	BeginChunkTx(ctx context.Context) (ChunkTx, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountChunksByDocument(ctx context.Context, documentID string) (int, error)
}

// ChunkTx is an open relational transaction over chunk rows. Writes are
// visible to the vector index only through the ids they allocate.
type ChunkTx interface {
	// InsertChunks flushes new rows and sets each chunk's ID from the database.
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	UpdateChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunks(ctx context.Context, ids []int64) error
	// DeleteChunksByDocument removes every row of a document and returns the removed ids.
	DeleteChunksByDocument(ctx context.Context, documentID string) ([]int64, error)
	Commit() error
	Rollback() error
}

// VersionStore persists archived document versions.
type VersionStore interface {
	// ArchiveVersion records v under the document's current version number and
	// increments the document's version in the same transaction. It returns the new version.
	ArchiveVersion(ctx context.Context, v *models.DocumentVersion) (int, error)
	GetDocumentVersion(ctx context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error)
	ListDocumentVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
}

// BatchStore persists batches. Progress updates are atomic increments.
type BatchStore interface {
	// CreateBatchWithDocuments inserts the batch and all of its documents in one transaction.
	CreateBatchWithDocuments(ctx context.Context, batch *models.Batch, docs []*models.Document) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListDocumentsByBatch(ctx context.Context, batchID string) ([]models.Document, error)
	SetBatchStatus(ctx context.Context, id string, status string) error
	UpdateBatchProgress(ctx context.Context, id string, deltaCompleted, deltaFailed int) (*models.Batch, error)
}

// EmbeddingCacheStore is the permanent, content-addressed embedding table.
type EmbeddingCacheStore interface {
	GetCachedEmbeddings(ctx context.Context, model, provider string, hashes []string) (map[string][]float32, error)
	PutCachedEmbeddings(ctx context.Context, entries []models.EmbeddingCacheEntry) error
}

// UsageStore holds per-user embedding counters for rate limiting.
type UsageStore interface {
	// IncrementEmbeddingUsage adds n to the user's counter for the window and returns the new total.
	IncrementEmbeddingUsage(ctx context.Context, userID string, windowStart time.Time, n int) (int, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	SpaceStore
	DocumentStore
	ChunkStore
	VersionStore
	BatchStore
	EmbeddingCacheStore
	UsageStore

	Close() error
}

// ObjectClient stores raw files. The bucket is fixed at construction.
// Implementations map a missing key to ErrObjectNotFound.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// VectorPoint is one vector keyed by its chunk's relational primary key.
type VectorPoint struct {
	ID         int64
	Vector     []float32
	DocumentID string
	UserID     string
	ChunkIndex int
	Page       int
	Heading    string
}

// VectorIndex is the similarity store. Point ids are chunk ids.
type VectorIndex interface {
	Upsert(ctx context.Context, points []VectorPoint) error
	DeleteByIDs(ctx context.Context, ids []int64) error
	DeleteByDocument(ctx context.Context, documentID string) error
	CountForDocument(ctx context.Context, documentID string) (int, error)
	CountForUser(ctx context.Context, userID string) (int, error)
}

package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// MemoryDb is an in-memory core.DbClient.
type MemoryDb struct {
	mu sync.Mutex

	spaces   map[string]*models.KnowledgeSpace // by user id
	docs     map[string]*models.Document
	chunks   map[int64]models.DocumentChunk
	versions map[string][]models.DocumentVersion
	batches  map[string]*models.Batch
	cache    map[string][]float32
	usage    map[string]int
	nextID   int64

	// CommitErr makes the next chunk transaction commit fail and discard its writes.
	CommitErr error
	// ArchiveErr fails every ArchiveVersion while set.
	ArchiveErr error
	// CacheGets counts GetCachedEmbeddings calls.
	CacheGets int
}

var _ core.DbClient = (*MemoryDb)(nil)

func NewMemoryDb() *MemoryDb {
	return &MemoryDb{
		spaces:   map[string]*models.KnowledgeSpace{},
		docs:     map[string]*models.Document{},
		chunks:   map[int64]models.DocumentChunk{},
		versions: map[string][]models.DocumentVersion{},
		batches:  map[string]*models.Batch{},
		cache:    map[string][]float32{},
		usage:    map[string]int{},
	}
}

func (m *MemoryDb) Close() error { return nil }

func (m *MemoryDb) GetOrCreateSpace(ctx context.Context, userID string, defaults models.ProcessingRules) (*models.KnowledgeSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[userID]
	if !ok {
		now := time.Now()
		s = &models.KnowledgeSpace{ID: uuid.NewString(), UserID: userID, Rules: defaults, CreatedAt: now, UpdatedAt: now}
		m.spaces[userID] = s
	}
	cp := *s
	return &cp, nil
}

// SetSpaceRules replaces a user's stored processing rules.
func (m *MemoryDb) SetSpaceRules(userID string, rules models.ProcessingRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.spaces[userID]; ok {
		s.Rules = rules
	}
}

func (m *MemoryDb) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertDocument(doc)
}

func (m *MemoryDb) insertDocument(doc *models.Document) error {
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("duplicate document id %s", doc.ID)
	}
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *MemoryDb) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryDb) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return m.listDocuments(func(d *models.Document) bool { return d.UserID == userID }), nil
}

func (m *MemoryDb) ListDocumentsByBatch(ctx context.Context, batchID string) ([]models.Document, error) {
	return m.listDocuments(func(d *models.Document) bool { return d.BatchID != nil && *d.BatchID == batchID }), nil
}

func (m *MemoryDb) listDocuments(keep func(*models.Document) bool) []models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

func (m *MemoryDb) CountDocumentsByUser(ctx context.Context, userID string) (int, error) {
	return len(m.listDocuments(func(d *models.Document) bool { return d.UserID == userID })), nil
}

func (m *MemoryDb) DocumentNameExists(ctx context.Context, userID, fileName string) (bool, error) {
	return len(m.listDocuments(func(d *models.Document) bool {
		return d.UserID == userID && strings.EqualFold(d.FileName, fileName)
	})) > 0, nil
}

func (m *MemoryDb) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	delete(m.docs, id)
	delete(m.versions, id)
	for cid, ch := range m.chunks {
		if ch.DocumentID == id {
			delete(m.chunks, cid)
		}
	}
	return nil
}

func (m *MemoryDb) mutateDocument(id string, fn func(d *models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	fn(d)
	d.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDb) MarkDocumentProcessing(ctx context.Context, id string) error {
	return m.mutateDocument(id, func(d *models.Document) {
		d.Status, d.Progress, d.ProgressStage, d.ErrorMessage = models.StatusProcessing, 0, "", ""
	})
}

func (m *MemoryDb) UpdateDocumentProgress(ctx context.Context, id string, progress int, stage string) error {
	return m.mutateDocument(id, func(d *models.Document) {
		d.Progress, d.ProgressStage = progress, stage
	})
}

func (m *MemoryDb) MarkDocumentFailed(ctx context.Context, id string, message string) error {
	return m.mutateDocument(id, func(d *models.Document) {
		d.Status, d.ErrorMessage, d.Progress, d.ProgressStage = models.StatusFailed, message, 0, ""
	})
}

func (m *MemoryDb) MarkDocumentCompleted(ctx context.Context, id string, chunkCount int, fileHash string) error {
	return m.mutateDocument(id, func(d *models.Document) {
		now := time.Now()
		d.Status, d.Progress, d.ProgressStage, d.ErrorMessage = models.StatusCompleted, 100, "completed", ""
		d.ChunkCount, d.LastUpdatedHash, d.ProcessedAt = chunkCount, fileHash, &now
	})
}

// Chunks

func (m *MemoryDb) ListChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range m.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *MemoryDb) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	chunks, _ := m.ListChunksByDocument(ctx, documentID)
	return len(chunks), nil
}

func (m *MemoryDb) BeginChunkTx(ctx context.Context) (core.ChunkTx, error) {
	return &memoryChunkTx{db: m}, nil
}

// memoryChunkTx stages writes and applies them atomically on Commit.
type memoryChunkTx struct {
	db   *MemoryDb
	ops  []func()
	done bool
}

func (t *memoryChunkTx) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	t.db.mu.Lock()
	for i := range chunks {
		t.db.nextID++
		chunks[i].ID = t.db.nextID
	}
	t.db.mu.Unlock()

	staged := append([]models.DocumentChunk(nil), chunks...)
	t.ops = append(t.ops, func() {
		now := time.Now()
		for _, ch := range staged {
			ch.CreatedAt, ch.UpdatedAt = now, now
			t.db.chunks[ch.ID] = ch
		}
	})
	return nil
}

func (t *memoryChunkTx) UpdateChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	staged := append([]models.DocumentChunk(nil), chunks...)
	t.ops = append(t.ops, func() {
		for _, ch := range staged {
			if old, ok := t.db.chunks[ch.ID]; ok {
				ch.CreatedAt, ch.UpdatedAt = old.CreatedAt, time.Now()
				t.db.chunks[ch.ID] = ch
			}
		}
	})
	return nil
}

func (t *memoryChunkTx) DeleteChunks(ctx context.Context, ids []int64) error {
	staged := append([]int64(nil), ids...)
	t.ops = append(t.ops, func() {
		for _, id := range staged {
			delete(t.db.chunks, id)
		}
	})
	return nil
}

func (t *memoryChunkTx) DeleteChunksByDocument(ctx context.Context, documentID string) ([]int64, error) {
	existing, _ := t.db.ListChunksByDocument(ctx, documentID)
	ids := make([]int64, 0, len(existing))
	for _, ch := range existing {
		ids = append(ids, ch.ID)
	}
	return ids, t.DeleteChunks(ctx, ids)
}

func (t *memoryChunkTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if err := t.db.CommitErr; err != nil {
		t.db.CommitErr = nil
		return err
	}
	for _, op := range t.ops {
		op()
	}
	return nil
}

func (t *memoryChunkTx) Rollback() error {
	t.done = true
	t.ops = nil
	return nil
}

// Versions

func (m *MemoryDb) ArchiveVersion(ctx context.Context, v *models.DocumentVersion) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ArchiveErr != nil {
		return 0, m.ArchiveErr
	}
	d, ok := m.docs[v.DocumentID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, v.DocumentID)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.VersionNumber = d.Version
	v.CreatedAt = time.Now()
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], *v)
	d.Version++
	return d.Version, nil
}

func (m *MemoryDb) GetDocumentVersion(ctx context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[documentID] {
		if v.VersionNumber == versionNumber {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryDb) ListDocumentVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.DocumentVersion(nil), m.versions[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

// Batches

func (m *MemoryDb) CreateBatchWithDocuments(ctx context.Context, batch *models.Batch, docs []*models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[batch.ID]; ok {
		return fmt.Errorf("duplicate batch id %s", batch.ID)
	}
	for _, d := range docs {
		if err := m.insertDocument(d); err != nil {
			return err
		}
	}
	now := time.Now()
	batch.CreatedAt, batch.UpdatedAt = now, now
	cp := *batch
	m.batches[batch.ID] = &cp
	return nil
}

func (m *MemoryDb) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryDb) SetBatchStatus(ctx context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrBatchNotFound, id)
	}
	b.Status = status
	return nil
}

func (m *MemoryDb) UpdateBatchProgress(ctx context.Context, id string, deltaCompleted, deltaFailed int) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrBatchNotFound, id)
	}
	b.CompletedCount += deltaCompleted
	b.FailedCount += deltaFailed
	b.Status = models.DeriveBatchStatus(b.TotalCount, b.CompletedCount, b.FailedCount)
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

// Embedding cache and usage

func cacheKey(model, provider, hash string) string {
	return model + "|" + provider + "|" + hash
}

func (m *MemoryDb) GetCachedEmbeddings(ctx context.Context, model, provider string, hashes []string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheGets++
	out := make(map[string][]float32)
	for _, h := range hashes {
		if v, ok := m.cache[cacheKey(model, provider, h)]; ok {
			out[h] = append([]float32(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryDb) PutCachedEmbeddings(ctx context.Context, entries []models.EmbeddingCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		k := cacheKey(e.Model, e.Provider, e.TextHash)
		if _, ok := m.cache[k]; !ok {
			m.cache[k] = append([]float32(nil), e.Embedding...)
		}
	}
	return nil
}

// CachedEmbeddingCount reports how many vectors the persistent cache holds.
func (m *MemoryDb) CachedEmbeddingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func (m *MemoryDb) IncrementEmbeddingUsage(ctx context.Context, userID string, windowStart time.Time, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userID + "|" + windowStart.UTC().Format(time.RFC3339)
	m.usage[k] += n
	return m.usage[k], nil
}

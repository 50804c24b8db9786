package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// newTestClient connects to TEST_DATABASE_URL or skips.
func newTestClient(t *testing.T) *DatabaseClient {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	c, err := NewDatabaseClient(context.Background(), &config.Config{DatabaseURL: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestDocument(t *testing.T, c *DatabaseClient, userID string) *models.Document {
	t.Helper()
	ctx := context.Background()
	space, err := c.GetOrCreateSpace(ctx, userID, config.DefaultRules())
	require.NoError(t, err)

	doc := &models.Document{
		ID:          uuid.NewString(),
		UserID:      userID,
		SpaceID:     space.ID,
		FileName:    "notes-" + uuid.NewString()[:8] + ".txt",
		StorageKey:  "users/" + userID + "/notes.txt",
		ContentType: "text/plain",
		Status:      models.StatusPending,
		Version:     1,
	}
	require.NoError(t, c.CreateDocument(ctx, doc))
	return doc
}

func TestGetOrCreateSpace_Idempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	first, err := c.GetOrCreateSpace(ctx, user, config.DefaultRules())
	require.NoError(t, err)
	second, err := c.GetOrCreateSpace(ctx, user, models.ProcessingRules{TargetTokens: 1})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, config.DefaultRules(), second.Rules, "stored rules win over later defaults")
}

func TestChunkTx_InsertAllocatesIDs(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "user-"+uuid.NewString())

	tx, err := c.BeginChunkTx(ctx)
	require.NoError(t, err)
	chunks := []models.DocumentChunk{
		{DocumentID: doc.ID, ChunkIndex: 0, Text: "a", ContentHash: "h0", EndChar: 1},
		{DocumentID: doc.ID, ChunkIndex: 1, Text: "b", ContentHash: "h1", StartChar: 1, EndChar: 2},
	}
	require.NoError(t, tx.InsertChunks(ctx, chunks))
	assert.NotZero(t, chunks[0].ID)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
	require.NoError(t, tx.Commit())

	n, err := c.CountChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tx, err = c.BeginChunkTx(ctx)
	require.NoError(t, err)
	ids, err := tx.DeleteChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{chunks[0].ID, chunks[1].ID}, ids)
	require.NoError(t, tx.Rollback())

	n, err = c.CountChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "rolled back delete leaves rows")
}

func TestArchiveVersion_BumpsVersion(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "user-"+uuid.NewString())

	v := &models.DocumentVersion{DocumentID: doc.ID, FilePath: "versions/1", FileHash: "abc", ChunkCount: 3}
	next, err := c.ArchiveVersion(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	assert.Equal(t, 1, v.VersionNumber)

	got, err := c.GetDocumentVersion(ctx, doc.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.FileHash)

	missing, err := c.GetDocumentVersion(ctx, doc.ID, 9)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateBatchProgress_AtomicCounters(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	space, err := c.GetOrCreateSpace(ctx, user, config.DefaultRules())
	require.NoError(t, err)

	batch := &models.Batch{ID: uuid.NewString(), UserID: user, TotalCount: 3, Status: models.StatusPending}
	var docs []*models.Document
	for i := 0; i < 3; i++ {
		bid := batch.ID
		docs = append(docs, &models.Document{
			ID: uuid.NewString(), UserID: user, SpaceID: space.ID, BatchID: &bid,
			FileName: uuid.NewString() + ".txt", StorageKey: "k", ContentType: "text/plain",
			Status: models.StatusPending, Version: 1,
		})
	}
	require.NoError(t, c.CreateBatchWithDocuments(ctx, batch, docs))

	done := make(chan error, 3)
	for _, delta := range [][2]int{{1, 0}, {0, 1}, {1, 0}} {
		go func(dc, df int) {
			_, err := c.UpdateBatchProgress(ctx, batch.ID, dc, df)
			done <- err
		}(delta[0], delta[1])
	}
	for i := 0; i < 3; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("progress update timed out")
		}
	}

	got, err := c.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CompletedCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestEmbeddingCacheAndUsage(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	hash := uuid.NewString()

	require.NoError(t, c.PutCachedEmbeddings(ctx, []models.EmbeddingCacheEntry{
		{Model: "m", Provider: "p", TextHash: hash, Embedding: []float32{0.5, 1}},
	}))
	got, err := c.GetCachedEmbeddings(ctx, "m", "p", []string{hash, "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{hash: {0.5, 1}}, got)

	user := "user-" + uuid.NewString()
	window := time.Now().Truncate(time.Hour)
	total, err := c.IncrementEmbeddingUsage(ctx, user, window, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	total, err = c.IncrementEmbeddingUsage(ctx, user, window, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}

package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/mock"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	lineA  = "Alpha paragraph one."
	lineB  = "Bravo paragraph two."
	lineB2 = "Bravo paragraph TWO."
	lineC  = "Charlie paragraph 3."
	lineD  = "Delta paragraph for."
)

func lines(ls ...string) string { return strings.Join(ls, "\n") }

func TestProcess_CompletesAndStaysConsistent(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))

	require.NoError(t, env.pipeline.Process(context.Background(), doc.ID))

	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, FileHash([]byte(lines(lineA, lineB, lineC))), got.LastUpdatedHash)
	assert.NotNil(t, got.ProcessedAt)
	assert.Equal(t, 3, env.requireConsistent(t, doc.ID))
}

func TestProcess_TwiceReplacesChunks(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB))
	ctx := context.Background()

	require.NoError(t, env.pipeline.Process(ctx, doc.ID))
	require.NoError(t, env.pipeline.Process(ctx, doc.ID))

	assert.Equal(t, 2, env.requireConsistent(t, doc.ID))
	assert.Equal(t, 1, env.embedder.CallCount(), "second run is served by the cache")
}

func TestReindex_EmbedsOnlyChangedChunks(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))
	ctx := context.Background()
	require.NoError(t, env.pipeline.Process(ctx, doc.ID))

	before, err := env.db.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)

	env.embedder.Reset()
	env.putFile(t, doc, lines(lineA, lineB2, lineC, lineD))
	require.NoError(t, env.pipeline.Reindex(ctx, doc.ID))

	assert.Equal(t, []string{lineB2, lineD}, env.embedder.EmbeddedTexts(),
		"chunks 0 and 2 never reach the provider")

	after, err := env.db.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, after, 4)
	assert.Equal(t, before[1].ID, after[1].ID, "updated in place")
	assert.Equal(t, lineB2, after[1].Text)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[2].ID, after[2].ID)

	assert.Equal(t, 4, env.document(t, doc.ID).ChunkCount)
	assert.Equal(t, 4, env.requireConsistent(t, doc.ID))
}

func TestReindex_RemovesTrailingChunks(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))
	ctx := context.Background()
	require.NoError(t, env.pipeline.Process(ctx, doc.ID))

	env.putFile(t, doc, lineA)
	require.NoError(t, env.pipeline.Reindex(ctx, doc.ID))

	assert.Equal(t, 1, env.requireConsistent(t, doc.ID))
	assert.Equal(t, 1, env.document(t, doc.ID).ChunkCount)
}

func TestProcess_ExtractionFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", "   \n  ")

	err := env.pipeline.Process(context.Background(), doc.ID)
	require.ErrorIs(t, err, core.ErrExtraction)
	assert.False(t, core.IsRetryable(err))

	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Zero(t, got.Progress)
	assert.Empty(t, got.ProgressStage)
}

func TestProcess_MissingFileMarksFailed(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lineA)
	require.NoError(t, env.objects.DeleteFile(context.Background(), doc.StorageKey))

	err := env.pipeline.Process(context.Background(), doc.ID)
	require.ErrorIs(t, err, core.ErrObjectNotFound)
	assert.Equal(t, models.StatusFailed, env.document(t, doc.ID).Status)
}

func TestProcess_UnknownDocument(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	err := env.pipeline.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestProcess_TimeoutForcesFailed(t *testing.T) {
	env := newTestEnv(t, 50*time.Millisecond)
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	doc := env.addDocument(t, "u1", lineA)

	err := env.pipeline.Process(context.Background(), doc.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "timed out")
	assert.Equal(t, 0, env.requireConsistent(t, doc.ID))
}

func TestProcess_CommitFailureLeavesNoVectors(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB))
	env.db.CommitErr = errors.New("serialization failure")

	err := env.pipeline.Process(context.Background(), doc.ID)
	require.ErrorIs(t, err, core.ErrRelationalCommit)
	assert.True(t, core.IsRetryable(err))

	assert.Equal(t, models.StatusFailed, env.document(t, doc.ID).Status)
	assert.Equal(t, 0, env.requireConsistent(t, doc.ID))
}

func TestProcess_PanicMarksFailedAndRepanics(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		panic("provider bug")
	}
	doc := env.addDocument(t, "u1", lineA)

	assert.Panics(t, func() { _ = env.pipeline.Process(context.Background(), doc.ID) })
	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "provider bug")
}

func TestProcess_UsesSpaceRules(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))
	env.db.SetSpaceRules("u1", models.ProcessingRules{TargetTokens: 100, MaxFragmentLen: 1000})

	require.NoError(t, env.pipeline.Process(context.Background(), doc.ID))
	assert.Equal(t, 1, env.document(t, doc.ID).ChunkCount)
}

func TestReindex_VectorFailureKeepsStoresInStep(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))
	ctx := context.Background()
	require.NoError(t, env.pipeline.Process(ctx, doc.ID))

	env.putFile(t, doc, lines(lineA, lineB2))
	env.index.DeleteByIDsErr = errors.New("index unavailable")
	err := env.pipeline.Reindex(ctx, doc.ID)
	require.ErrorIs(t, err, core.ErrVectorIndexWrite)
	env.index.DeleteByIDsErr = nil

	rows, err := env.db.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, lineB, rows[1].Text)

	p, ok := env.index.Point(rows[1].ID)
	require.True(t, ok)
	assert.Equal(t, mock.DeterministicVector(lineB, 4), p.Vector)
	assert.Equal(t, 3, env.requireConsistent(t, doc.ID))
	assert.Equal(t, models.StatusFailed, env.document(t, doc.ID).Status)
}

package ingestion_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, userID string, n int) (bool, error) {
	return false, nil
}

func TestReindex_QuotaExceededFailsDocument(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	doc := env.addDocument(t, "u1", lines(lineA, lineB, lineC))
	ctx := context.Background()
	require.NoError(t, env.pipeline.Process(ctx, doc.ID))

	limited := NewPipeline(PipelineDeps{
		DB:        env.db,
		Objects:   env.objects,
		Index:     env.index,
		Extractor: NewDocconvExtractor(false),
		Embedder:  embedding.NewGenerator(env.embedder, embedding.NewCache(env.db, 100), denyLimiter{}, 8),
	}, lineRules, time.Minute)

	env.embedder.Reset()
	env.putFile(t, doc, lines(lineA, lineB2, lineC))
	err := limited.Reindex(ctx, doc.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmbeddingQuotaExceeded))
	assert.False(t, core.IsRetryable(err))
	assert.Zero(t, env.embedder.CallCount())

	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Equal(t, 3, env.requireConsistent(t, doc.ID), "previous chunk set is untouched")
}

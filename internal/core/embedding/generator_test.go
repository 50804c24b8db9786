package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/mock"
	"github.com/markdave123-py/contexta-ingest/internal/core/ratelimit"
)

func newTestGenerator(batchSize int, limiter core.RateLimiter) (*Generator, *mock.MockEmbedder, *mock.MemoryDb) {
	db := mock.NewMemoryDb()
	emb := mock.NewMockEmbedder(4)
	return NewGenerator(emb, NewCache(db, 100), limiter, batchSize), emb, db
}

func TestEmbed_CacheReuseAcrossCalls(t *testing.T) {
	g, emb, _ := newTestGenerator(16, nil)
	ctx := context.Background()

	first, stats, err := g.Embed(ctx, "u1", []string{"shared paragraph", "only in doc one"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Misses)
	assert.Equal(t, 1, emb.CallCount())

	second, stats, err := g.Embed(ctx, "u2", []string{"only in doc two", "shared paragraph"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1, stats.Misses)

	assert.Equal(t, first[0], second[1])
	assert.Equal(t, []string{"shared paragraph", "only in doc one", "only in doc two"}, emb.EmbeddedTexts())
}

func TestEmbed_DeduplicatesWithinRequest(t *testing.T) {
	g, emb, _ := newTestGenerator(16, nil)

	out, stats, err := g.Embed(context.Background(), "u1", []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, out[0], out[2])
	assert.Equal(t, 2, stats.Unique)
	assert.Equal(t, []string{"a", "b"}, emb.EmbeddedTexts())
}

func TestEmbed_PersistentCacheSurvivesNewGenerator(t *testing.T) {
	db := mock.NewMemoryDb()
	emb := mock.NewMockEmbedder(4)
	ctx := context.Background()

	_, _, err := NewGenerator(emb, NewCache(db, 100), nil, 8).Embed(ctx, "u1", []string{"x"})
	require.NoError(t, err)

	_, stats, err := NewGenerator(emb, NewCache(db, 100), nil, 8).Embed(ctx, "u1", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1, emb.CallCount())
}

func TestEmbed_FailedBatchKeepsEarlierBatches(t *testing.T) {
	g, emb, db := newTestGenerator(2, nil)
	calls := 0
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("provider unavailable")
		}
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = mock.DeterministicVector(t, 4)
		}
		return out, nil
	}

	_, _, err := g.Embed(context.Background(), "u1", []string{"a", "b", "c", "d"})
	require.ErrorIs(t, err, core.ErrEmbedding)
	assert.Equal(t, 2, db.CachedEmbeddingCount(), "first batch stays cached")

	emb.EmbedTextsFunc = nil
	emb.Reset()
	_, stats, err := g.Embed(context.Background(), "u1", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CacheHits)
	assert.Equal(t, []string{"c", "d"}, emb.EmbeddedTexts())
}

func TestEmbed_QuotaExceededIsHardStop(t *testing.T) {
	db := mock.NewMemoryDb()
	limiter := ratelimit.NewStoreLimiter(db, 3, time.Hour)
	emb := mock.NewMockEmbedder(4)
	g := NewGenerator(emb, NewCache(db, 100), limiter, 2)

	_, _, err := g.Embed(context.Background(), "u1", []string{"a", "b", "c", "d"})
	require.ErrorIs(t, err, core.ErrEmbeddingQuotaExceeded)
	assert.False(t, core.IsRetryable(err))
	assert.Equal(t, 1, emb.CallCount(), "second batch never reaches the provider")
}

func TestEmbed_CacheHitsDoNotConsumeQuota(t *testing.T) {
	db := mock.NewMemoryDb()
	limiter := ratelimit.NewStoreLimiter(db, 2, time.Hour)
	g := NewGenerator(mock.NewMockEmbedder(4), NewCache(db, 100), limiter, 8)
	ctx := context.Background()

	_, _, err := g.Embed(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	_, stats, err := g.Embed(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CacheHits)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(mock.NewMemoryDb(), 10)
	ctx := context.Background()
	require.NoError(t, c.PutMany(ctx, "m", "p", map[string][]float32{"h": {1, 2}}))

	got, err := c.GetMany(ctx, "m", "p", []string{"h"})
	require.NoError(t, err)
	got["h"][0] = 99

	again, err := c.GetMany(ctx, "m", "p", []string{"h"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, again["h"])
}

func TestTextHash(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", TextHash("hello"))
}

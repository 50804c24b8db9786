package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const defaultBatchSize = 16

// Stats describes one Embed call.
type Stats struct {
	Requested     int // texts passed in
	Unique        int // distinct texts after hashing
	CacheHits     int
	Misses        int
	ProviderCalls int
}

// Generator produces embeddings through the cache, calling the provider only
// for misses and only while the user's rate limit allows it.
type Generator struct {
	provider  core.EmbeddingProvider
	cache     *Cache
	limiter   core.RateLimiter
	batchSize int
	logger    *slog.Logger
}

// NewGenerator wires a provider to a cache. A nil limiter disables rate limiting.
func NewGenerator(provider core.EmbeddingProvider, cache *Cache, limiter core.RateLimiter, batchSize int) *Generator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Generator{
		provider:  provider,
		cache:     cache,
		limiter:   limiter,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "embedding"),
	}
}

// Lookup returns the cached vectors for the given text hashes. It never calls
// the provider and never consumes quota.
func (g *Generator) Lookup(ctx context.Context, hashes []string) (map[string][]float32, error) {
	return g.cache.GetMany(ctx, g.provider.Model(), g.provider.Provider(), hashes)
}

// Embed returns one vector per text, in order. Each provider batch is cached as
// soon as it returns, so a later failing batch never discards earlier work.
// A denied rate limit check fails with core.ErrEmbeddingQuotaExceeded.
func (g *Generator) Embed(ctx context.Context, userID string, texts []string) ([][]float32, Stats, error) {
	stats := Stats{Requested: len(texts)}
	if len(texts) == 0 {
		return nil, stats, nil
	}

	hashes := make([]string, len(texts))
	var unique []string
	textByHash := make(map[string]string, len(texts))
	for i, t := range texts {
		h := TextHash(t)
		hashes[i] = h
		if _, seen := textByHash[h]; !seen {
			textByHash[h] = t
			unique = append(unique, h)
		}
	}
	stats.Unique = len(unique)

	model, provider := g.provider.Model(), g.provider.Provider()
	vectors, err := g.cache.GetMany(ctx, model, provider, unique)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
	}
	stats.CacheHits = len(vectors)

	var misses []string
	for _, h := range unique {
		if _, ok := vectors[h]; !ok {
			misses = append(misses, h)
		}
	}
	stats.Misses = len(misses)

	for start := 0; start < len(misses); start += g.batchSize {
		end := min(start+g.batchSize, len(misses))
		batch := misses[start:end]

		if g.limiter != nil {
			ok, err := g.limiter.Allow(ctx, userID, len(batch))
			if err != nil {
				return nil, stats, fmt.Errorf("%w: rate limiter: %v", core.ErrEmbedding, err)
			}
			if !ok {
				g.logger.Warn("embedding quota exceeded", "user_id", userID, "remaining", len(misses)-start)
				return nil, stats, fmt.Errorf("%w: user %s", core.ErrEmbeddingQuotaExceeded, userID)
			}
		}

		batchTexts := make([]string, len(batch))
		for i, h := range batch {
			batchTexts[i] = textByHash[h]
		}

		stats.ProviderCalls++
		got, err := g.provider.EmbedTexts(ctx, batchTexts)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
		}
		if len(got) != len(batch) {
			return nil, stats, fmt.Errorf("%w: provider returned %d vectors for %d texts", core.ErrEmbedding, len(got), len(batch))
		}

		fresh := make(map[string][]float32, len(batch))
		for i, h := range batch {
			fresh[h] = got[i]
			vectors[h] = got[i]
		}
		if err := g.cache.PutMany(ctx, model, provider, fresh); err != nil {
			return nil, stats, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
		}
	}

	out := make([][]float32, len(texts))
	for i, h := range hashes {
		out[i] = vectors[h]
	}
	g.logger.Debug("embedded texts", "requested", stats.Requested, "hits", stats.CacheHits, "misses", stats.Misses, "calls", stats.ProviderCalls)
	return out, stats, nil
}

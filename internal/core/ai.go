package core

import "context"

// EmbeddingProvider turns texts into vectors. Model and Provider form part of
// the embedding cache key, so two providers never share cached vectors.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Provider() string
}

// RateLimiter meters embedding work per user. Allow reserves n units and
// reports whether the user is still within quota.
type RateLimiter interface {
	Allow(ctx context.Context, userID string, n int) (bool, error)
}

package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const defaultCacheSize = 10000

// TextHash is the content address of a chunk text in the embedding cache.
func TextHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Cache is the permanent embedding cache: an in-process LRU in front of the
// relational embedding_cache table. Entries are shared across documents and users.
type Cache struct {
	lru   *lru.Cache[string, []float32]
	store core.EmbeddingCacheStore
}

func NewCache(store core.EmbeddingCacheStore, size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	l, err := lru.New[string, []float32](size)
	if err != nil {
		l, _ = lru.New[string, []float32](defaultCacheSize)
	}
	return &Cache{lru: l, store: store}
}

func lruKey(model, provider, hash string) string {
	return model + "\x00" + provider + "\x00" + hash
}

// GetMany returns copies of the cached vectors for hashes. Missing hashes are absent from the result.
func (c *Cache) GetMany(ctx context.Context, model, provider string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	var misses []string
	for _, h := range hashes {
		if v, ok := c.lru.Get(lruKey(model, provider, h)); ok {
			out[h] = copyVector(v)
			continue
		}
		misses = append(misses, h)
	}
	if len(misses) == 0 {
		return out, nil
	}

	found, err := c.store.GetCachedEmbeddings(ctx, model, provider, misses)
	if err != nil {
		return nil, fmt.Errorf("load embedding cache: %w", err)
	}
	for h, v := range found {
		c.lru.Add(lruKey(model, provider, h), copyVector(v))
		out[h] = v
	}
	return out, nil
}

// PutMany persists vectors keyed by text hash.
func (c *Cache) PutMany(ctx context.Context, model, provider string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	entries := make([]models.EmbeddingCacheEntry, 0, len(vectors))
	for h, v := range vectors {
		entries = append(entries, models.EmbeddingCacheEntry{
			Model:     model,
			Provider:  provider,
			TextHash:  h,
			Embedding: v,
		})
	}
	if err := c.store.PutCachedEmbeddings(ctx, entries); err != nil {
		return fmt.Errorf("store embedding cache: %w", err)
	}
	for h, v := range vectors {
		c.lru.Add(lruKey(model, provider, h), copyVector(v))
	}
	return nil
}

// Len reports the number of vectors held in memory.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (c *DatabaseClient) GetCachedEmbeddings(ctx context.Context, model, provider string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	const q = `
		SELECT text_hash, embedding
		FROM embedding_cache
		WHERE model = $1 AND provider = $2 AND text_hash = ANY($3)
	`
	rows, err := c.db.QueryContext(ctx, q, model, provider, hashes)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		out[hash] = vec.Slice()
	}
	return out, rows.Err()
}

// PutCachedEmbeddings stores entries; an existing key keeps its first vector.
func (c *DatabaseClient) PutCachedEmbeddings(ctx context.Context, entries []models.EmbeddingCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO embedding_cache (model, provider, text_hash, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model, provider, text_hash) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Model, e.Provider, e.TextHash, pgvector.NewVector(e.Embedding)); err != nil {
			return fmt.Errorf("insert cache entry: %w", err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) IncrementEmbeddingUsage(ctx context.Context, userID string, windowStart time.Time, n int) (int, error) {
	const q = `
		INSERT INTO embedding_usage (user_id, window_start, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, window_start)
		DO UPDATE SET count = embedding_usage.count + EXCLUDED.count
		RETURNING count
	`
	var total int
	if err := c.db.QueryRowContext(ctx, q, userID, windowStart.UTC(), n).Scan(&total); err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return total, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type chunkTx struct {
	tx *sql.Tx
}

func (c *DatabaseClient) BeginChunkTx(ctx context.Context) (core.ChunkTx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &chunkTx{tx: tx}, nil
}

func (c *DatabaseClient) ListChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, text, content_hash, start_char, end_char, page, heading, created_at, updated_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &ch.ContentHash,
			&ch.StartChar, &ch.EndChar, &ch.Page, &ch.Heading, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

func (t *chunkTx) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const q = `
		INSERT INTO document_chunks
			(document_id, chunk_index, text, content_hash, start_char, end_char, page, heading)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	stmt, err := t.tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if err := stmt.QueryRowContext(ctx, ch.DocumentID, ch.ChunkIndex, ch.Text, ch.ContentHash,
			ch.StartChar, ch.EndChar, ch.Page, ch.Heading).Scan(&ch.ID); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return nil
}

func (t *chunkTx) UpdateChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const q = `
		UPDATE document_chunks
		SET text = $2, content_hash = $3, start_char = $4, end_char = $5, page = $6, heading = $7, updated_at = now()
		WHERE id = $1
	`
	stmt, err := t.tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Text, ch.ContentHash, ch.StartChar, ch.EndChar, ch.Page, ch.Heading); err != nil {
			return fmt.Errorf("update chunk %d: %w", ch.ID, err)
		}
	}
	return nil
}

func (t *chunkTx) DeleteChunks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (t *chunkTx) DeleteChunksByDocument(ctx context.Context, documentID string) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1 RETURNING id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete document chunks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *chunkTx) Commit() error {
	return t.tx.Commit()
}

func (t *chunkTx) Rollback() error {
	return t.tx.Rollback()
}

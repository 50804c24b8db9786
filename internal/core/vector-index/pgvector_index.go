package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// PgVectorIndex keeps vectors in a Postgres table next to the relational store.
// It uses its own statements outside the chunk transaction, so the table has no
// foreign key to document_chunks.
type PgVectorIndex struct {
	db *sql.DB
}

var _ core.VectorIndex = (*PgVectorIndex)(nil)

func NewPgVectorIndex(ctx context.Context, db *sql.DB, dim int) (*PgVectorIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_vectors (
			id          BIGINT PRIMARY KEY,
			document_id UUID NOT NULL,
			user_id     TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			page        INTEGER NOT NULL DEFAULT 0,
			heading     TEXT NOT NULL DEFAULT '',
			embedding   vector(%d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors(document_id);
		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_user ON chunk_vectors(user_id);
	`, dim)
	if _, err := db.ExecContext(ctx, q); err != nil {
		return nil, fmt.Errorf("create chunk_vectors: %w", err)
	}
	return &PgVectorIndex{db: db}, nil
}

func (p *PgVectorIndex) Upsert(ctx context.Context, points []core.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO chunk_vectors (id, document_id, user_id, chunk_index, page, heading, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET chunk_index = EXCLUDED.chunk_index, page = EXCLUDED.page,
		    heading = EXCLUDED.heading, embedding = EXCLUDED.embedding
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, pt := range points {
		if _, err := stmt.ExecContext(ctx, pt.ID, pt.DocumentID, pt.UserID, pt.ChunkIndex,
			pt.Page, pt.Heading, pgvector.NewVector(pt.Vector)); err != nil {
			return fmt.Errorf("upsert vector %d: %w", pt.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PgVectorIndex) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE id = ANY($1)`, ids)
	return err
}

func (p *PgVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	return err
}

func (p *PgVectorIndex) CountForDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM chunk_vectors WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

func (p *PgVectorIndex) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM chunk_vectors WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

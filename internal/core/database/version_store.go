package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (c *DatabaseClient) ArchiveVersion(ctx context.Context, v *models.DocumentVersion) (int, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE id = $1 FOR UPDATE`, v.DocumentID).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, v.DocumentID)
	}
	if err != nil {
		return 0, fmt.Errorf("lock document: %w", err)
	}
	v.VersionNumber = current

	const insert = `
		INSERT INTO document_versions
			(id, document_id, version_number, file_path, file_hash, chunk_count, change_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := tx.QueryRowContext(ctx, insert, v.ID, v.DocumentID, v.VersionNumber, v.FilePath,
		v.FileHash, v.ChunkCount, v.ChangeSummary).Scan(&v.CreatedAt); err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`UPDATE documents SET version = version + 1, updated_at = now() WHERE id = $1 RETURNING version`,
		v.DocumentID).Scan(&next); err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit version: %w", err)
	}
	return next, nil
}

const versionColumns = `id, document_id, version_number, file_path, file_hash, chunk_count, change_summary, created_at`

func (c *DatabaseClient) GetDocumentVersion(ctx context.Context, documentID string, versionNumber int) (*models.DocumentVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 AND version_number = $2`
	var v models.DocumentVersion
	err := c.db.QueryRowContext(ctx, q, documentID, versionNumber).Scan(
		&v.ID, &v.DocumentID, &v.VersionNumber, &v.FilePath, &v.FileHash, &v.ChunkCount, &v.ChangeSummary, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *DatabaseClient) ListDocumentVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentVersion
	for rows.Next() {
		var v models.DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.FilePath, &v.FileHash,
			&v.ChunkCount, &v.ChangeSummary, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

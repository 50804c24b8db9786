package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		// Append SSL params to the provided DATABASE_URL safely.
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Batch workers and ingest workers share this pool.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the pool so the pgvector index can share connections.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Knowledge spaces

func (c *DatabaseClient) GetOrCreateSpace(ctx context.Context, userID string, defaults models.ProcessingRules) (*models.KnowledgeSpace, error) {
	rules, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}

	const insert = `
		INSERT INTO knowledge_spaces (id, user_id, processing_rules)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := c.db.ExecContext(ctx, insert, uuid.NewString(), userID, string(rules)); err != nil {
		return nil, fmt.Errorf("create space: %w", err)
	}

	const q = `
		SELECT id, user_id, processing_rules, created_at, updated_at
		FROM knowledge_spaces
		WHERE user_id = $1
	`
	var (
		s   models.KnowledgeSpace
		raw []byte
	)
	if err := c.db.QueryRowContext(ctx, q, userID).Scan(&s.ID, &s.UserID, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}
	s.Rules = defaults
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Rules); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
	}
	return &s, nil
}

// Documents

const documentColumns = `
	id, user_id, space_id, batch_id, file_name, storage_key, content_type, size_bytes, language,
	status, progress, progress_stage, error_message, version, last_updated_hash, chunk_count,
	processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d           models.Document
		batchID     sql.NullString
		processedAt sql.NullTime
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.SpaceID, &batchID, &d.FileName, &d.StorageKey, &d.ContentType, &d.SizeBytes, &d.Language,
		&d.Status, &d.Progress, &d.ProgressStage, &d.ErrorMessage, &d.Version, &d.LastUpdatedHash, &d.ChunkCount,
		&processedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if batchID.Valid {
		d.BatchID = &batchID.String
	}
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.Time
	}
	return &d, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDocument(ctx context.Context, q execer, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const stmt = `
		INSERT INTO documents
			(id, user_id, space_id, batch_id, file_name, storage_key, content_type, size_bytes, language, status, version)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.ExecContext(ctx, stmt,
		doc.ID, doc.UserID, doc.SpaceID, doc.BatchID, doc.FileName, doc.StorageKey, doc.ContentType,
		doc.SizeBytes, doc.Language, doc.Status, doc.Version)
	return err
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	return insertDocument(ctx, c.db, doc)
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	return c.queryDocuments(ctx, q, userID)
}

func (c *DatabaseClient) ListDocumentsByBatch(ctx context.Context, batchID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE batch_id = $1 ORDER BY file_name ASC`
	return c.queryDocuments(ctx, q, batchID)
}

func (c *DatabaseClient) queryDocuments(ctx context.Context, q string, args ...any) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountDocumentsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// DocumentNameExists compares names case-insensitively.
func (c *DatabaseClient) DocumentNameExists(ctx context.Context, userID, fileName string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE user_id = $1 AND lower(file_name) = lower($2))`,
		userID, fileName).Scan(&exists)
	return exists, err
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	return c.execOne(ctx, `DELETE FROM documents WHERE id = $1`, id)
}

func (c *DatabaseClient) MarkDocumentProcessing(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET status = 'processing', progress = 0, progress_stage = '', error_message = '', updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id)
}

func (c *DatabaseClient) UpdateDocumentProgress(ctx context.Context, id string, progress int, stage string) error {
	const q = `
		UPDATE documents
		SET progress = $2, progress_stage = $3, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, progress, stage)
}

func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, id string, message string) error {
	const q = `
		UPDATE documents
		SET status = 'failed', error_message = $2, progress = 0, progress_stage = '', updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, message)
}

func (c *DatabaseClient) MarkDocumentCompleted(ctx context.Context, id string, chunkCount int, fileHash string) error {
	const q = `
		UPDATE documents
		SET status = 'completed', progress = 100, progress_stage = 'completed', error_message = '',
		    chunk_count = $2, last_updated_hash = $3, processed_at = now(), updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, chunkCount, fileHash)
}

// execOne runs a single-row document mutation and reports a missing row.
func (c *DatabaseClient) execOne(ctx context.Context, q string, id string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

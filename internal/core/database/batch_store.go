package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (c *DatabaseClient) CreateBatchWithDocuments(ctx context.Context, batch *models.Batch, docs []*models.Document) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO batches (id, user_id, total_count, completed_count, failed_count, status)
		VALUES ($1, $2, $3, 0, 0, $4)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRowContext(ctx, q, batch.ID, batch.UserID, batch.TotalCount, batch.Status).
		Scan(&batch.CreatedAt, &batch.UpdatedAt); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, d := range docs {
		if err := insertDocument(ctx, tx, d); err != nil {
			return fmt.Errorf("insert document %s: %w", d.FileName, err)
		}
	}

	return tx.Commit()
}

const batchColumns = `id, user_id, total_count, completed_count, failed_count, status, created_at, updated_at`

func scanBatch(row rowScanner) (*models.Batch, error) {
	var b models.Batch
	if err := row.Scan(&b.ID, &b.UserID, &b.TotalCount, &b.CompletedCount, &b.FailedCount,
		&b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *DatabaseClient) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	b, err := scanBatch(c.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (c *DatabaseClient) SetBatchStatus(ctx context.Context, id string, status string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE batches SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrBatchNotFound, id)
	}
	return nil
}

// UpdateBatchProgress increments the counters in a single statement. Every SET
// expression reads the pre-update row, so the status is derived from the new totals.
func (c *DatabaseClient) UpdateBatchProgress(ctx context.Context, id string, deltaCompleted, deltaFailed int) (*models.Batch, error) {
	const q = `
		UPDATE batches SET
			completed_count = completed_count + $2,
			failed_count    = failed_count + $3,
			status = CASE
				WHEN completed_count + $2 + failed_count + $3 < total_count THEN 'processing'
				WHEN completed_count + $2 = 0 AND failed_count + $3 > 0 THEN 'failed'
				ELSE 'completed'
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + batchColumns
	b, err := scanBatch(c.db.QueryRowContext(ctx, q, id, deltaCompleted, deltaFailed))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrBatchNotFound, id)
	}
	return b, err
}

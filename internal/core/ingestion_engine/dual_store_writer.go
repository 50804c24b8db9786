package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// WritePlan is one atomic change to a document's chunks and vectors.
type WritePlan struct {
	Document *models.Document
	// ReplaceAll deletes every stored row of the document inside the transaction first.
	ReplaceAll bool
	Delete     []int64
	Update     []models.DocumentChunk
	Insert     []models.DocumentChunk
	// Vectors holds the embedding for every chunk in Update and Insert, by chunk index.
	Vectors map[int][]float32

	// Previous holds the stored rows that Update and Delete overwrite. When the
	// write fails after points were touched, their points are rebuilt from
	// PreviousVectors (keyed by content hash); rows without a vector lose their point.
	Previous        []models.DocumentChunk
	PreviousVectors func(ctx context.Context, hashes []string) (map[string][]float32, error)
}

// DualStoreWriter keeps the relational chunk rows and the vector index in step.
// Rows are flushed first so their primary keys can be used as point ids, vectors
// are written next, and the relational transaction commits last.
type DualStoreWriter struct {
	chunks core.ChunkStore
	index  core.VectorIndex
	logger *slog.Logger
}

func NewDualStoreWriter(chunks core.ChunkStore, index core.VectorIndex) *DualStoreWriter {
	return &DualStoreWriter{
		chunks: chunks,
		index:  index,
		logger: slog.Default().With("component", "dual-store-writer"),
	}
}

// Apply executes plan. On a vector failure the transaction is rolled back,
// freshly inserted points are removed and overwritten points are restored to
// the rolled back rows. On a commit failure every point of the
// document is removed; cleanup errors are logged and the commit error is returned.
func (w *DualStoreWriter) Apply(ctx context.Context, plan WritePlan) error {
	doc := plan.Document

	tx, err := w.chunks.BeginChunkTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrRelationalCommit, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stale := append([]int64(nil), plan.Delete...)
	if plan.ReplaceAll {
		ids, err := tx.DeleteChunksByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		stale = append(stale, ids...)
	}
	if err := tx.DeleteChunks(ctx, plan.Delete); err != nil {
		return err
	}
	if err := tx.UpdateChunks(ctx, plan.Update); err != nil {
		return err
	}
	inserted := append([]models.DocumentChunk(nil), plan.Insert...)
	if err := tx.InsertChunks(ctx, inserted); err != nil {
		return err
	}

	points, err := buildPoints(doc, plan.Update, inserted, plan.Vectors)
	if err != nil {
		return err
	}

	if err := w.index.Upsert(ctx, points); err != nil {
		w.revert(ctx, plan, inserted)
		return fmt.Errorf("%w: upsert: %v", core.ErrVectorIndexWrite, err)
	}
	if err := w.index.DeleteByIDs(ctx, stale); err != nil {
		w.revert(ctx, plan, inserted)
		return fmt.Errorf("%w: delete stale: %v", core.ErrVectorIndexWrite, err)
	}

	if err := tx.Commit(); err != nil {
		committed = true // a failed commit cannot be rolled back
		if cerr := w.index.DeleteByDocument(context.WithoutCancel(ctx), doc.ID); cerr != nil {
			w.logger.Error("compensating vector delete failed", "document_id", doc.ID, "err", cerr)
		}
		return fmt.Errorf("%w: %v", core.ErrRelationalCommit, err)
	}
	committed = true

	w.logger.Debug("chunks written", "document_id", doc.ID,
		"inserted", len(inserted), "updated", len(plan.Update), "deleted", len(stale))
	return nil
}

// revert undoes vector writes whose relational counterpart is rolled back.
// Upserts and deletes may have partially applied, so every point of an
// inserted row is removed and every point of a previous row is rewritten.
func (w *DualStoreWriter) revert(ctx context.Context, plan WritePlan, inserted []models.DocumentChunk) {
	ctx = context.WithoutCancel(ctx)
	doc := plan.Document
	w.discardInserted(ctx, doc.ID, inserted)

	previous := make(map[int64]models.DocumentChunk, len(plan.Previous))
	for _, ch := range plan.Previous {
		previous[ch.ID] = ch
	}
	// Updated rows missing from Previous cannot be restored, only dropped.
	var drop []int64
	for _, ch := range plan.Update {
		if _, ok := previous[ch.ID]; !ok {
			drop = append(drop, ch.ID)
		}
	}

	var vectors map[string][]float32
	if len(previous) > 0 && plan.PreviousVectors != nil {
		hashes := make([]string, 0, len(previous))
		for _, ch := range previous {
			hashes = append(hashes, ch.ContentHash)
		}
		var err error
		if vectors, err = plan.PreviousVectors(ctx, hashes); err != nil {
			w.logger.Error("previous vectors unavailable", "document_id", doc.ID, "err", err)
		}
	}

	points := make([]core.VectorPoint, 0, len(previous))
	for _, ch := range plan.Previous {
		vec, ok := vectors[ch.ContentHash]
		if !ok {
			drop = append(drop, ch.ID)
			continue
		}
		points = append(points, core.VectorPoint{
			ID:         ch.ID,
			Vector:     vec,
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			ChunkIndex: ch.ChunkIndex,
			Page:       ch.Page,
			Heading:    ch.Heading,
		})
	}
	if len(points) > 0 {
		if err := w.index.Upsert(ctx, points); err != nil {
			w.logger.Error("restoring previous vectors failed", "document_id", doc.ID, "err", err)
			for _, p := range points {
				drop = append(drop, p.ID)
			}
		}
	}
	if len(drop) > 0 {
		if err := w.index.DeleteByIDs(ctx, drop); err != nil {
			w.logger.Error("dropping unrestorable vectors failed", "document_id", doc.ID, "ids", len(drop), "err", err)
		}
	}
}

// discardInserted removes points whose rows will never commit.
func (w *DualStoreWriter) discardInserted(ctx context.Context, documentID string, inserted []models.DocumentChunk) {
	if len(inserted) == 0 {
		return
	}
	ids := make([]int64, 0, len(inserted))
	for _, ch := range inserted {
		ids = append(ids, ch.ID)
	}
	if err := w.index.DeleteByIDs(context.WithoutCancel(ctx), ids); err != nil {
		w.logger.Error("vector cleanup after failed write", "document_id", documentID, "err", err)
	}
}

func buildPoints(doc *models.Document, updated, inserted []models.DocumentChunk, vectors map[int][]float32) ([]core.VectorPoint, error) {
	points := make([]core.VectorPoint, 0, len(updated)+len(inserted))
	for _, group := range [][]models.DocumentChunk{updated, inserted} {
		for _, ch := range group {
			vec, ok := vectors[ch.ChunkIndex]
			if !ok {
				return nil, fmt.Errorf("%w: no vector for chunk %d", core.ErrEmbedding, ch.ChunkIndex)
			}
			points = append(points, core.VectorPoint{
				ID:         ch.ID,
				Vector:     vec,
				DocumentID: doc.ID,
				UserID:     doc.UserID,
				ChunkIndex: ch.ChunkIndex,
				Page:       ch.Page,
				Heading:    ch.Heading,
			})
		}
	}
	return points, nil
}

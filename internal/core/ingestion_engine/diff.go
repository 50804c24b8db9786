package ingestion_engine

import (
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ChunkDiff classifies fresh chunks against stored rows by chunk index.
// Comparison is by content hash only: an edit at index i is always an update
// at i, never a delete plus an add.
type ChunkDiff struct {
	Unchanged []models.DocumentChunk // same text and position, no write
	Relocated []models.DocumentChunk // same text, new offsets or structure; row refresh only
	Updated   []models.DocumentChunk // same id, new text
	Added     []models.DocumentChunk // no row at this index yet; ID is zero
	Deleted   []models.DocumentChunk // stored rows past the end of the fresh sequence
}

// Changed reports whether applying the diff writes anything.
func (d ChunkDiff) Changed() bool {
	return len(d.Relocated)+len(d.Updated)+len(d.Added)+len(d.Deleted) > 0
}

// DeletedIDs returns the ids of the rows to delete.
func (d ChunkDiff) DeletedIDs() []int64 {
	ids := make([]int64, 0, len(d.Deleted))
	for _, ch := range d.Deleted {
		ids = append(ids, ch.ID)
	}
	return ids
}

// AddedIndexes returns the chunk indexes of added chunks.
func (d ChunkDiff) AddedIndexes() []int {
	return chunkIndexes(d.Added)
}

// UpdatedIndexes returns the chunk indexes of updated chunks.
func (d ChunkDiff) UpdatedIndexes() []int {
	return chunkIndexes(d.Updated)
}

func chunkIndexes(chunks []models.DocumentChunk) []int {
	out := make([]int, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, ch.ChunkIndex)
	}
	return out
}

// DiffChunks compares fresh against existing, which may be in any order.
func DiffChunks(documentID string, existing []models.DocumentChunk, fresh []core.Chunk) ChunkDiff {
	byIndex := make(map[int]models.DocumentChunk, len(existing))
	for _, ch := range existing {
		byIndex[ch.ChunkIndex] = ch
	}

	var d ChunkDiff
	for _, c := range fresh {
		row := NewChunkRow(documentID, c)
		old, ok := byIndex[c.Index]
		if !ok {
			d.Added = append(d.Added, row)
			continue
		}
		delete(byIndex, c.Index)

		row.ID = old.ID
		row.CreatedAt = old.CreatedAt
		switch {
		case old.ContentHash != row.ContentHash:
			d.Updated = append(d.Updated, row)
		case old.StartChar != row.StartChar || old.EndChar != row.EndChar ||
			old.Page != row.Page || old.Heading != row.Heading:
			d.Relocated = append(d.Relocated, row)
		default:
			d.Unchanged = append(d.Unchanged, old)
		}
	}

	for _, ch := range existing {
		if _, left := byIndex[ch.ChunkIndex]; left {
			d.Deleted = append(d.Deleted, ch)
		}
	}
	return d
}

// NewChunkRow converts a chunker output into a row with its content hash set.
func NewChunkRow(documentID string, c core.Chunk) models.DocumentChunk {
	return models.DocumentChunk{
		DocumentID:  documentID,
		ChunkIndex:  c.Index,
		Text:        c.Text,
		ContentHash: embedding.TextHash(c.Text),
		StartChar:   c.StartChar,
		EndChar:     c.EndChar,
		Page:        c.Page,
		Heading:     c.Heading,
	}
}

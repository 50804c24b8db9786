package core

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ExtractedText is the plain text of a file. PageMap holds the character offset
// at which each page starts; it is empty for formats without pages.
type ExtractedText struct {
	Text     string
	PageMap  []int
	Metadata map[string]string
}

// DocumentExtractor converts raw file bytes into text.
// The contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*ExtractedText, error)
}

// TextCleaner normalizes extracted text. Implementations must be pure and idempotent.
type TextCleaner interface {
	Clean(text string, rules models.ProcessingRules) string
}

// Chunk is one span of cleaned text produced by a Chunker.
type Chunk struct {
	Index     int
	Text      string
	StartChar int
	EndChar   int
	Page      int
	Heading   string
}

// Chunker splits text into an ordered chunk sequence. Output must be
// deterministic for identical inputs.
type Chunker interface {
	Chunk(text string, rules models.ProcessingRules, pageMap []int) []Chunk
}

package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Plain text and markdown are decoded directly.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (*core.ExtractedText, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	var (
		text string
		meta map[string]string
	)
	switch mediaType {
	case "text/plain", "text/markdown", "text/x-markdown":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8", core.ErrExtraction, mediaType)
		}
		text = string(data)
	default:
		res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
		if err != nil {
			slog.Warn("docconv: extraction failed", "content_type", mediaType, "err", err)
			return nil, fmt.Errorf("%w: %v", core.ErrExtraction, err)
		}
		text, meta = res.Body, res.Meta
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text in %s document", core.ErrExtraction, mediaType)
	}

	return &core.ExtractedText{
		Text:     text,
		PageMap:  PageMap(text),
		Metadata: meta,
	}, nil
}

// PageMap returns the offset at which each form-feed separated page starts.
// Text without form feeds has no pages.
func PageMap(text string) []int {
	if !strings.ContainsRune(text, '\f') {
		return nil
	}
	pages := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\f' {
			pages = append(pages, i+1)
		}
	}
	return pages
}

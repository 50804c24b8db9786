package ingestion_engine

import (
	"regexp"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var (
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0E-\x1F\x7F]`)
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	inlineSpaces  = regexp.MustCompile(`[ \t\x{00A0}]+`)
	edgeSpaces    = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// RegexCleaner normalizes extracted text. Form feeds survive so page
// boundaries can be recovered after cleaning.
type RegexCleaner struct{}

var _ core.TextCleaner = RegexCleaner{}

func (RegexCleaner) Clean(text string, rules models.ProcessingRules) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlChars.ReplaceAllString(text, "")

	if rules.RemoveURLsEmails {
		text = urlPattern.ReplaceAllString(text, "")
		text = emailPattern.ReplaceAllString(text, "")
	}
	if rules.RemoveExtraWhitespace {
		text = inlineSpaces.ReplaceAllString(text, " ")
		text = edgeSpaces.ReplaceAllString(text, "")
		text = blankLineRuns.ReplaceAllString(text, "\n\n")
		text = strings.TrimSpace(text)
	}
	return text
}

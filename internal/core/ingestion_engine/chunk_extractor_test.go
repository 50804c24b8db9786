package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func TestLineChunker_OffsetsAreExactSubstrings(t *testing.T) {
	text := "# Intro\nAlpha paragraph one.\n\nBravo paragraph two.\n# Details\nCharlie paragraph 3."
	chunks := LineChunker{}.Chunk(text, lineRules, nil)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index, "indexes are contiguous")
		assert.Equal(t, text[c.StartChar:c.EndChar], c.Text)
	}
}

func TestLineChunker_Deterministic(t *testing.T) {
	text := strings.Repeat("some words in a line that repeats\n", 40)
	rules := models.ProcessingRules{TargetTokens: 30, OverlapTokens: 10, MaxFragmentLen: 1000}

	assert.Equal(t, LineChunker{}.Chunk(text, rules, nil), LineChunker{}.Chunk(text, rules, nil))
}

func TestLineChunker_OverlapRepeatsTailOnly(t *testing.T) {
	// Each line is 2 tokens.
	text := "aaaaaaa\nbbbbbbb\nccccccc\nddddddd\neeeeeee\nfffffff"
	rules := models.ProcessingRules{TargetTokens: 6, OverlapTokens: 2, MaxFragmentLen: 1000}

	chunks := LineChunker{}.Chunk(text, rules, nil)
	require.Len(t, chunks, 3)
	assert.Equal(t, "aaaaaaa\nbbbbbbb\nccccccc", chunks[0].Text)
	assert.Equal(t, "ccccccc\nddddddd\neeeeeee", chunks[1].Text)
	assert.Equal(t, "eeeeeee\nfffffff", chunks[2].Text)
}

func TestLineChunker_NoTrailingChunkOfOverlapOnly(t *testing.T) {
	text := "aaaaaaa\nbbbbbbb\nccccccc"
	rules := models.ProcessingRules{TargetTokens: 6, OverlapTokens: 2, MaxFragmentLen: 1000}

	chunks := LineChunker{}.Chunk(text, rules, nil)
	require.Len(t, chunks, 1)
}

func TestLineChunker_HeadingsAndPages(t *testing.T) {
	text := "# Intro\nAlpha paragraph one.\f# Methods\nBravo paragraph two."
	chunks := LineChunker{}.Chunk(text, lineRules, PageMap(text))
	require.Len(t, chunks, 2)

	assert.Equal(t, "# Intro\nAlpha paragraph one.", chunks[0].Text)
	assert.Equal(t, "Intro", chunks[0].Heading)
	assert.Equal(t, 1, chunks[0].Page)

	assert.Equal(t, "# Methods\nBravo paragraph two.", chunks[1].Text)
	assert.Equal(t, "Methods", chunks[1].Heading)
	assert.Equal(t, 2, chunks[1].Page)
}

func TestLineChunker_SplitsLongLines(t *testing.T) {
	line := strings.Repeat("word ", 100)
	rules := models.ProcessingRules{TargetTokens: 1000, MaxFragmentLen: 60}

	frags := splitFragments(line, rules.MaxFragmentLen)
	require.Greater(t, len(frags), 1)
	for _, f := range frags {
		assert.LessOrEqual(t, f.End-f.Start, 60)
		assert.False(t, strings.HasPrefix(line[f.Start:f.End], " "))
	}
}

func TestLineChunker_EmptyText(t *testing.T) {
	assert.Empty(t, LineChunker{}.Chunk(" \n\n\t", lineRules, nil))
}

func TestPageAt(t *testing.T) {
	pages := []int{0, 10, 25}
	assert.Equal(t, 1, pageAt(pages, 0))
	assert.Equal(t, 1, pageAt(pages, 9))
	assert.Equal(t, 2, pageAt(pages, 10))
	assert.Equal(t, 3, pageAt(pages, 40))
	assert.Equal(t, 0, pageAt(nil, 5))
}

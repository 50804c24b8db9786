package ingestion_engine

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// fragment is one non-blank line of the cleaned text. Start and End are byte
// offsets into that text, so a chunk's text is always an exact substring.
type fragment struct {
	Start   int
	End     int
	Tokens  int
	Heading string // heading in effect at this fragment
}

// LineChunker groups line fragments into token-bounded chunks with overlap.
type LineChunker struct{}

var _ core.Chunker = LineChunker{}

// Chunk splits text into chunks of roughly rules.TargetTokens. Each chunk after
// the first repeats up to rules.OverlapTokens of trailing fragments from the
// previous one, but never all of them, so every chunk advances.
func (LineChunker) Chunk(text string, rules models.ProcessingRules, pageMap []int) []core.Chunk {
	frags := splitFragments(text, rules.MaxFragmentLen)
	if len(frags) == 0 {
		return nil
	}
	target := max(rules.TargetTokens, 1)

	var (
		out    []core.Chunk
		buf    []fragment
		tokSum int
		fresh  int // fragments in buf not yet emitted
	)

	// flush emits the buffer and keeps an overlap tail as the seed of the next chunk.
	flush := func() {
		first, last := buf[0], buf[len(buf)-1]
		out = append(out, core.Chunk{
			Index:     len(out),
			Text:      text[first.Start:last.End],
			StartChar: first.Start,
			EndChar:   last.End,
			Page:      pageAt(pageMap, first.Start),
			Heading:   first.Heading,
		})

		keep := 0
		remain := rules.OverlapTokens
		for j := len(buf) - 1; j > 0 && remain >= buf[j].Tokens; j-- {
			remain -= buf[j].Tokens
			keep++
		}
		buf = append(buf[:0], buf[len(buf)-keep:]...)
		tokSum = 0
		for _, f := range buf {
			tokSum += f.Tokens
		}
		fresh = 0
	}

	for _, f := range frags {
		buf = append(buf, f)
		tokSum += f.Tokens
		fresh++
		if tokSum >= target {
			flush()
		}
	}
	if fresh > 0 {
		flush()
	}
	return out
}

// splitFragments cuts text at line and page breaks, trims each line and splits
// lines longer than maxLen bytes, preferring a space as the cut point.
func splitFragments(text string, maxLen int) []fragment {
	var (
		out     []fragment
		heading string
	)
	lineStart := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' && text[i] != '\f' {
			continue
		}
		start, end := trimBounds(text, lineStart, i)
		lineStart = i + 1
		if start == end {
			continue
		}
		if h, ok := headingOf(text[start:end]); ok {
			heading = h
		}
		for _, span := range splitLong(text, start, end, maxLen) {
			out = append(out, fragment{
				Start:   span[0],
				End:     span[1],
				Tokens:  approxTokens(text[span[0]:span[1]]),
				Heading: heading,
			})
		}
	}
	return out
}

func trimBounds(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\v'
}

func splitLong(text string, start, end, maxLen int) [][2]int {
	if maxLen <= 0 || end-start <= maxLen {
		return [][2]int{{start, end}}
	}
	var spans [][2]int
	for {
		start, end = trimBounds(text, start, end)
		if start >= end {
			break
		}
		if end-start <= maxLen {
			spans = append(spans, [2]int{start, end})
			break
		}
		cut := start + maxLen
		for cut > start && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if sp := strings.LastIndexByte(text[start:cut], ' '); sp > maxLen/2 {
			cut = start + sp
		}
		if cut == start {
			cut = start + maxLen
		}
		if s, e := trimBounds(text, start, cut); s < e {
			spans = append(spans, [2]int{s, e})
		}
		start = cut
	}
	return spans
}

// headingOf recognizes markdown ATX headings.
func headingOf(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	h := strings.TrimSpace(strings.TrimLeft(line, "#"))
	if h == "" || len(line)-len(strings.TrimLeft(line, "#")) > 6 {
		return "", false
	}
	return h, true
}

// pageAt maps an offset to a 1-based page number, or 0 when there are no pages.
func pageAt(pageMap []int, offset int) int {
	if len(pageMap) == 0 {
		return 0
	}
	return sort.Search(len(pageMap), func(i int) bool { return pageMap[i] > offset })
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

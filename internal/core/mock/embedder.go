package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// MockEmbedder is a deterministic core.EmbeddingProvider that records every call.
type MockEmbedder struct {
	// EmbedTextsFunc replaces the default behavior when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dim   int
	mu    sync.Mutex
	calls [][]string
}

var _ core.EmbeddingProvider = (*MockEmbedder)(nil)

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{dim: dim}
}

func (m *MockEmbedder) Model() string    { return "mock-embedding" }
func (m *MockEmbedder) Provider() string { return "mock" }

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = DeterministicVector(t, m.dim)
	}
	return out, nil
}

// CallCount is the number of EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// EmbeddedTexts returns every text sent to the provider, in call order.
func (m *MockEmbedder) EmbeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		out = append(out, c...)
	}
	return out
}

// Reset clears recorded calls.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// DeterministicVector derives a unit vector from an FNV hash of text.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	var sum float64
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000.0 + 0.001
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

package mock

import (
	"context"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// MemoryVectorIndex is an in-memory core.VectorIndex.
type MemoryVectorIndex struct {
	mu     sync.Mutex
	points map[int64]core.VectorPoint

	// UpsertErr fails every Upsert while set.
	UpsertErr error
	// DeleteByDocumentErr fails every DeleteByDocument while set.
	DeleteByDocumentErr error
	// DeleteByIDsErr fails every DeleteByIDs while set.
	DeleteByIDsErr error

	Upserts int
}

var _ core.VectorIndex = (*MemoryVectorIndex)(nil)

func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{points: map[int64]core.VectorPoint{}}
}

func (m *MemoryVectorIndex) Upsert(ctx context.Context, points []core.VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Upserts++
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryVectorIndex) DeleteByIDs(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteByIDsErr != nil {
		return m.DeleteByIDsErr
	}
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteByDocumentErr != nil {
		return m.DeleteByDocumentErr
	}
	for id, p := range m.points {
		if p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryVectorIndex) CountForDocument(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.points {
		if p.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryVectorIndex) CountForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.points {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Point returns a stored point by id.
func (m *MemoryVectorIndex) Point(id int64) (core.VectorPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	return p, ok
}

// Seed stores points directly, bypassing UpsertErr.
func (m *MemoryVectorIndex) Seed(points ...core.VectorPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
}

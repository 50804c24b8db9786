package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// MemoryObjectClient is an in-memory core.ObjectClient.
type MemoryObjectClient struct {
	mu      sync.Mutex
	objects map[string][]byte

	// UploadErr fails every UploadFile while set.
	UploadErr error
}

var _ core.ObjectClient = (*MemoryObjectClient)(nil)

func NewMemoryObjectClient() *MemoryObjectClient {
	return &MemoryObjectClient{objects: map[string][]byte{}}
}

func (m *MemoryObjectClient) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (m *MemoryObjectClient) GetFile(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryObjectClient) DeleteFile(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Has reports whether key is stored.
func (m *MemoryObjectClient) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Len reports how many objects are stored.
func (m *MemoryObjectClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

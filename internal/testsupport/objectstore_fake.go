package testsupport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"filerelay/internal/services"
)

// MemoryObjectStore keeps uploaded objects in memory.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int

	// Err, when set, fails every upload.
	Err error
}

// NewMemoryObjectStore returns an empty store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (m *MemoryObjectStore) UpsertObject(_ context.Context, container, key string, content io.Reader, _ int64, overwrite bool) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	full := container + "/" + key
	if _, exists := m.objects[full]; exists && !overwrite {
		return fmt.Errorf("%w: %s", services.ErrObjectExists, full)
	}
	m.objects[full] = data
	m.puts++
	return nil
}

// Object returns the stored content for container/key.
func (m *MemoryObjectStore) Object(container, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[container+"/"+key]
	return data, ok
}

// Puts reports how many uploads succeeded.
func (m *MemoryObjectStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

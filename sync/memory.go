package sync

import (
	"context"
	"io"
	"sort"
	"strings"
	gosync "sync"
)

// MemoryDestination is an in-memory Destination. It records calls so tests
// can assert on what was written.
type MemoryDestination struct {
	mu          gosync.Mutex
	objects     map[string]memObject
	PutCalls    []string
	DeleteCalls []string
}

type memObject struct {
	meta ObjectMeta
	data []byte
}

func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{objects: make(map[string]memObject)}
}

func (m *MemoryDestination) Put(_ context.Context, key string, r io.Reader, meta ObjectMeta) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	meta.Size = int64(len(data))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, key)
	m.objects[key] = memObject{meta: meta, data: data}
	return nil
}

func (m *MemoryDestination) Stat(_ context.Context, key string) (*ObjectMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	meta := obj.meta
	return &meta, nil
}

func (m *MemoryDestination) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryDestination) Delete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.DeleteCalls = append(m.DeleteCalls, k)
		delete(m.objects, k)
	}
	return nil
}

// Seed stores meta at key without recording a Put.
func (m *MemoryDestination) Seed(key string, meta ObjectMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{meta: meta}
}

// Data returns the stored bytes for key.
func (m *MemoryDestination) Data(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Reset clears recorded calls, keeping stored objects.
func (m *MemoryDestination) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = nil
	m.DeleteCalls = nil
}

package cache

import (
	"context"
	"sync"
)

// Memory is a concurrency-safe in-process Store.
type Memory[T any] struct {
	mu sync.RWMutex

	// key: request signature
	data map[string]Entry[T]
}

// NewMemory creates an empty in-memory store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		data: make(map[string]Entry[T]),
	}
}

// Get returns the stored entry for key.
func (m *Memory[T]) Get(_ context.Context, key string) (Entry[T], bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	return e, ok, nil
}

// Set replaces the entry for key.
func (m *Memory[T]) Set(_ context.Context, key string, entry Entry[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = entry
	return nil
}

// Reset empties the store.
func (m *Memory[T]) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]Entry[T])
	return nil
}

// Len reports the number of stored entries, fresh or not.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

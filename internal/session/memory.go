package session

import (
	"context"
	"maps"
	"sync"
)

// NewMemoryBackend returns a Backend held in process memory.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

// MemoryBackend implements Backend for tests and single-process embedding.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// ReadAll returns a copy of the stored keys.
func (b *MemoryBackend) ReadAll(_ context.Context) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.values), nil
}

// WriteAll replaces the stored keys.
func (b *MemoryBackend) WriteAll(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	b.values = maps.Clone(values)
	b.mu.Unlock()
	return nil
}

// DeleteAll removes every stored key.
func (b *MemoryBackend) DeleteAll(_ context.Context) error {
	b.mu.Lock()
	b.values = make(map[string]string)
	b.mu.Unlock()
	return nil
}

// Set writes a single key. Useful for tests that need partial state.
func (b *MemoryBackend) Set(key, value string) {
	b.mu.Lock()
	b.values[key] = value
	b.mu.Unlock()
}

// Has reports whether a key exists. Useful for tests.
func (b *MemoryBackend) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.values[key]
	return ok
}

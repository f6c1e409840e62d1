package persist

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Sink.Get when no data is stored under key.
var ErrNotFound = errors.New("persist: key not found")

// Sink stores snapshots by key. Implementations are called from executor
// goroutines and must be safe for concurrent use.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// MemorySink keeps snapshots in memory. Useful for tests and demos.
type MemorySink struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{data: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (m *MemorySink) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

// Get returns a copy of the data stored under key.
func (m *MemorySink) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Puts returns the number of successful Put calls.
func (m *MemorySink) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

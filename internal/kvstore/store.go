// Package kvstore provides the key/value storage port the community registry
// persists through, plus memory, file, Redis, Postgres and S3 backends.
package kvstore

import (
	"context"
	"errors"
	"sync"
)

// Store is a string key/value store. Get reports found=false with a nil error
// when the key has never been written.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// ErrEmptyKey is returned for operations with an empty key.
var ErrEmptyKey = errors.New("kvstore: empty key")

// Memory is an in-process Store. Used for tests and development.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Unavailable is the Store used when no persistent storage exists. Reads
// find nothing and writes are discarded.
type Unavailable struct{}

// Get implements Store.
func (Unavailable) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// Set implements Store.
func (Unavailable) Set(context.Context, string, string) error {
	return nil
}

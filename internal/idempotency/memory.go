package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is a process-local Repository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]Record
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{keys: make(map[string]Record)}
}

// Get implements Repository.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &record, nil
}

// Store implements Repository. A zero CreatedAt is set to now.
func (r *InMemoryRepository) Store(_ context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[record.Key]; exists {
		return ErrKeyExists
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.keys[record.Key] = *record
	return nil
}

// DeleteOlderThan implements Repository.
func (r *InMemoryRepository) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var deleted int64
	for key, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored records.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

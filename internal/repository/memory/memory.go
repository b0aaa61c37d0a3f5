// Package memory implements repository.KeyValueStore with a Go map.
//
// Nothing survives a restart. It is used by tests across the module and by
// STORAGE=memory for throwaway local runs.
package memory

import (
	"context"
	"sync"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/repository"
)

var _ repository.KeyValueStore = (*Store)(nil)

// Store is a concurrency-safe in-memory key-value store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns a copy of the value under key, or apperror.NotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, apperror.NotFound("key", key)
	}
	// Copy out so callers can't mutate what we hold.
	return append([]byte(nil), v...), nil
}

// Set replaces the value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

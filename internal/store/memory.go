package store

import (
	"bytes"
	"context"
	"sync"
)

var _ KV = (*MemoryStore)(nil)

// MemoryStore is a non-durable KV for tests and throwaway servers.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = bytes.Clone(value)
	s.writes++
	return nil
}

// Writes returns the number of Set calls so far.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) Close() error { return nil }

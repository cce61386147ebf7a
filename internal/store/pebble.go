package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var _ KV = (*PebbleStore)(nil)

// PebbleStore implements KV on a local Pebble LSM. Every Set is synced.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens or creates a Pebble database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key %q: %w", key, err)
	}
	defer func() { _ = closer.Close() }()
	// v is only valid until closer is closed.
	return bytes.Clone(v), nil
}

func (s *PebbleStore) Set(_ context.Context, key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("set key %q: %w", key, err)
	}
	return nil
}

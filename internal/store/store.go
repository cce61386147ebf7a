// Package store provides the durable key-value stores used to persist
// service state across restarts. Writes are full overwrites of a key.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("key not found")

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// KV is a durable key-value store.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Options selects and configures a KV implementation.
type Options struct {
	Backend   string
	Path      string // sqlite file, pebble or badger directory
	RedisAddr string
}

// Open returns the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.Path)
	case BackendPebble:
		return NewPebbleStore(opts.Path)
	case BackendBadger:
		return NewBadgerStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisAddr)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Package storage defines the persistent key/value capability used by the
// price cache, with memory, redis and postgres backends in sub-packages.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is the persistent key/value capability.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveMany deletes every key in keys.
	RemoveMany(ctx context.Context, keys ...string) error
}

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

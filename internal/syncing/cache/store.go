// Package cache persists the last good payload per key with its write time,
// so failed refreshes can fall back to data that is still within a maximum age.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/infra/storage"
)

// DefaultPrefix namespaces cache keys inside a shared KV.
const DefaultPrefix = "metal_prices:"

// Option configures a Store.
type Option func(*options)

type options struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	prefix  string
	managed []string
}

// WithClock sets the clock used to stamp and age entries.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger for swallowed storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrefix sets the key prefix. An empty prefix stores keys verbatim.
func WithPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}

// WithManagedKeys registers keys that Clear removes even if this process
// never wrote them.
func WithManagedKeys(keys ...string) Option {
	return func(o *options) { o.managed = append(o.managed, keys...) }
}

// Store is a time-bounded cache of T values on top of a storage.KV.
// Storage failures never escape: writes and clears are best effort and a
// failed read is a miss.
type Store[T any] struct {
	kv     storage.KV
	clock  clockwork.Clock
	logger *slog.Logger
	prefix string

	mu      sync.Mutex
	managed map[string]struct{}
}

// NewStore creates a Store backed by kv.
func NewStore[T any](kv storage.KV, opts ...Option) *Store[T] {
	o := options{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		kv:      kv,
		clock:   o.clock,
		logger:  o.logger,
		prefix:  o.prefix,
		managed: make(map[string]struct{}, len(o.managed)),
	}
	for _, k := range o.managed {
		s.managed[k] = struct{}{}
	}
	return s
}

// Write stores payload under key stamped with the current time.
func (s *Store[T]) Write(ctx context.Context, key string, payload T) {
	entry := Entry[T]{Key: key, Payload: payload, StoredAt: s.clock.Now()}

	s.mu.Lock()
	s.managed[key] = struct{}{}
	s.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.prefix+key, data); err != nil {
		s.logger.Warn("Failed to cache data", "key", key, "error", err)
	}
}

// Read returns the entry for key if it is at most maxAge old.
// Expired and undecodable entries are removed from storage.
func (s *Store[T]) Read(ctx context.Context, key string, maxAge time.Duration) (Entry[T], bool) {
	entry, ok := s.load(ctx, key)
	if !ok {
		return Entry[T]{}, false
	}

	if entry.Age(s.clock.Now()) > maxAge {
		s.evict(ctx, key)
		return Entry[T]{}, false
	}
	return entry, true
}

// Peek returns the entry for key regardless of age and never evicts.
func (s *Store[T]) Peek(ctx context.Context, key string) (Entry[T], bool) {
	return s.load(ctx, key)
}

// Clear removes every managed key.
// A Write racing with Clear may repopulate its key afterwards.
func (s *Store[T]) Clear(ctx context.Context) {
	keys := s.Keys()
	if len(keys) == 0 {
		return
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if err := s.kv.RemoveMany(ctx, full...); err != nil {
		s.logger.Warn("Failed to clear cache", "keys", len(full), "error", err)
	}
}

// Keys returns the managed keys in sorted order.
func (s *Store[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.managed))
}

func (s *Store[T]) load(ctx context.Context, key string) (Entry[T], bool) {
	data, err := s.kv.Get(ctx, s.prefix+key)
	if errors.Is(err, storage.ErrNotFound) {
		return Entry[T]{}, false
	}
	if err != nil {
		s.logger.Warn("Failed to get cached data", "key", key, "error", err)
		return Entry[T]{}, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		s.evict(ctx, key)
		return Entry[T]{}, false
	}
	return entry, true
}

func (s *Store[T]) evict(ctx context.Context, key string) {
	if err := s.kv.Remove(ctx, s.prefix+key); err != nil {
		s.logger.Warn("Failed to evict cache entry", "key", key, "error", err)
	}
}

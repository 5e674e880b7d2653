package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/metalsync/internal/infra/storage"
)

// KV implements storage.KV on the cache_entries table.
type KV struct {
	db *DB
}

// NewKV creates a new PostgreSQL key/value store.
func NewKV(db *DB) *KV {
	return &KV{db: db}
}

// Get returns the value stored at key.
func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.db.GetContext(ctx, &value, `SELECT value FROM cache_entries WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return value, nil
}

// Set upserts value at key.
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set entry: %w", err)
	}
	return nil
}

// Remove deletes key.
func (k *KV) Remove(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	return nil
}

// RemoveMany deletes all keys in one statement.
func (k *KV) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := k.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("failed to remove entries: %w", err)
	}
	return nil
}

/*
Package cache provides the local persistent key-value store backing the
reconciliation engine's write-through step. Keys are namespaced per entity
kind and patient ("clinical_<id>", "history_<id>"); values are opaque
serialized strings.

Two tiers are provided: an in-process LRU for hot reads and a Postgres
table for durability, composed by LayeredStore.
*/
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store is the get/set/remove-by-key contract the engine consumes.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ---------------------------------------------------------------------------
// MemoryStore -- in-process LRU tier
// ---------------------------------------------------------------------------

// MemoryStore keeps recently used entries in an LRU cache. It is safe for
// concurrent use and never returns an error.
type MemoryStore struct {
	entries *lru.Cache[string, string]
}

// NewMemoryStore creates a memory store holding up to size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.entries.Get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.entries.Add(key, value)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

// ---------------------------------------------------------------------------
// PostgresStore -- durable tier
// ---------------------------------------------------------------------------

// PostgresStore persists entries in a single key-value table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the cache table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_cache (
			cache_key   TEXT PRIMARY KEY,
			cache_value TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create app_cache table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT cache_value FROM app_cache WHERE cache_key = $1`, key).Scan(&value)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_cache (cache_key, cache_value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (cache_key)
		DO UPDATE SET cache_value = EXCLUDED.cache_value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM app_cache WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("cache remove %q: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// LayeredStore -- memory in front of durable
// ---------------------------------------------------------------------------

// LayeredStore reads from the memory tier first and writes through to the
// durable tier. Durable failures on Set are the caller's to handle; memory
// tier failures cannot happen.
type LayeredStore struct {
	hot     Store
	durable Store
}

// NewLayeredStore composes the two tiers.
func NewLayeredStore(hot, durable Store) *LayeredStore {
	return &LayeredStore{hot: hot, durable: durable}
}

func (s *LayeredStore) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := s.hot.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	v, ok, err := s.durable.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}

	// Backfill the hot tier; a failure here only costs the next read.
	if err := s.hot.Set(ctx, key, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to backfill memory cache")
	}
	return v, true, nil
}

func (s *LayeredStore) Set(ctx context.Context, key, value string) error {
	if err := s.durable.Set(ctx, key, value); err != nil {
		return err
	}
	return s.hot.Set(ctx, key, value)
}

func (s *LayeredStore) Remove(ctx context.Context, key string) error {
	if err := s.hot.Remove(ctx, key); err != nil {
		return err
	}
	return s.durable.Remove(ctx, key)
}

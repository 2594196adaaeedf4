package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createCacheTableSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	region TEXT NOT NULL,
	metric_set TEXT NOT NULL,
	payload BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL,
	PRIMARY KEY (region, metric_set)
);
`

// SQLiteBackend stores cache entries in a SQLite database, keyed the same
// way as the in-memory store.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set busy timeout: %w", err)
	}
	if _, err := db.Exec(createCacheTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create tables: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, key Key) ([]byte, time.Time, time.Duration, bool, error) {
	var (
		payload   []byte
		fetchedAt int64
		ttlMs     int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at, ttl_ms FROM cache_entries WHERE region = ? AND metric_set = ?`,
		key.Region, key.MetricSet,
	).Scan(&payload, &fetchedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, 0, false, nil
	}
	if err != nil {
		return nil, time.Time{}, 0, false, fmt.Errorf("cache: load %s: %w", key, err)
	}

	return payload, time.Unix(0, fetchedAt).UTC(), time.Duration(ttlMs) * time.Millisecond, true, nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, key Key, payload []byte, fetchedAt time.Time, ttl time.Duration) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO cache_entries (region, metric_set, payload, fetched_at, ttl_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(region, metric_set) DO UPDATE SET
	payload = excluded.payload,
	fetched_at = excluded.fetched_at,
	ttl_ms = excluded.ttl_ms`,
		key.Region, key.MetricSet, payload, fetchedAt.UnixNano(), ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

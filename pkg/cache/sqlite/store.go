// Package sqlite provides a SQLite-backed cache.Store so cached
// responses survive process restarts.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sableworks/bulwark/pkg/cache"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	last_access INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries (expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_access ON cache_entries (last_access);
`

// Store is the persistent cache backend. Timestamps are stored as Unix
// nanoseconds so expiry comparisons avoid timezone handling entirely.
//
// Store satisfies the best-effort cache.Store contract: database errors
// are logged and surfaced as misses, never as request failures.
type Store struct {
	db         *sql.DB
	maxEntries int
	logger     *slog.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// Open creates or opens the cache database at path. maxEntries of zero
// disables the entry bound.
func Open(path string, maxEntries int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db, maxEntries: maxEntries, logger: logger}, nil
}

// Get implements cache.Store.
func (s *Store) Get(key string) ([]byte, bool) {
	now := time.Now().UnixNano()

	var value []byte
	var expires int64
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expires)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("cache lookup failed", "error", err)
		}
		s.misses.Add(1)
		return nil, false
	}

	if expires <= now {
		if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			s.logger.Warn("expired entry removal failed", "error", err)
		}
		s.expirations.Add(1)
		s.misses.Add(1)
		return nil, false
	}

	if _, err := s.db.Exec(
		`UPDATE cache_entries SET last_access = ? WHERE key = ?`, now, key,
	); err != nil {
		s.logger.Warn("cache access update failed", "error", err)
	}

	s.hits.Add(1)
	return value, true
}

// Put implements cache.Store.
func (s *Store) Put(key string, value []byte, ttl time.Duration) {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, value, expires_at, last_access)
		 VALUES (?, ?, ?, ?)`,
		key, value, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		s.logger.Warn("cache write failed", "error", err)
		return
	}

	s.evictOverflow()
}

// evictOverflow removes least-recently-accessed rows until the entry
// bound is respected.
func (s *Store) evictOverflow() {
	if s.maxEntries <= 0 {
		return
	}

	res, err := s.db.Exec(
		`DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY last_access DESC LIMIT -1 OFFSET ?
		)`, s.maxEntries,
	)
	if err != nil {
		s.logger.Warn("cache eviction failed", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.evictions.Add(n)
	}
}

// Invalidate implements cache.Store.
func (s *Store) Invalidate(key string) bool {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		s.logger.Warn("cache invalidation failed", "error", err)
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

// Clear implements cache.Store.
func (s *Store) Clear() {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		s.logger.Warn("cache clear failed", "error", err)
	}
}

// Len implements cache.Store.
func (s *Store) Len() int {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		s.logger.Warn("cache count failed", "error", err)
		return 0
	}
	return count
}

// Sweep implements cache.Store.
func (s *Store) Sweep() int {
	res, err := s.db.Exec(
		`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().UnixNano(),
	)
	if err != nil {
		s.logger.Warn("cache sweep failed", "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	s.expirations.Add(n)
	return int(n)
}

// Stats implements cache.Store.
func (s *Store) Stats() cache.Stats {
	var entries int
	var bytes sql.NullInt64
	if err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM cache_entries`,
	).Scan(&entries, &bytes); err != nil {
		s.logger.Warn("cache stats failed", "error", err)
	}

	return cache.Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
		Entries:     entries,
		Bytes:       bytes.Int64,
	}
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

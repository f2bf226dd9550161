package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is a single-node Store implementation backed by a SQLite table.
// Expiry is enforced on read: rows whose expires_at has passed are treated
// as absent and removed opportunistically. PruneExpired can additionally be
// run periodically to keep the table small.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at path and ensures the
// cache table exists. Use ":memory:" for an ephemeral store in tests.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite %q: %w", path, err)
	}

	// A single writer avoids SQLITE_BUSY from concurrent request handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS chat_histories (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at TEXT NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Get returns the payload stored under key, treating expired rows as absent.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresStr string

	err := s.db.QueryRowContext(ctx, `
SELECT value, expires_at FROM chat_histories WHERE key = ?
`, key).Scan(&value, &expiresStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, expiresStr)
	if err != nil || time.Now().UTC().After(expiresAt) {
		// Expired (or unparseable) rows behave exactly like missing keys.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM chat_histories WHERE key = ?`, key)
		return nil, false, nil
	}

	return value, true, nil
}

// SetWithTTL upserts key with value and resets expires_at to ttl from now.
func (s *SQLite) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl).Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_histories (key, value, expires_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value      = excluded.value,
	expires_at = excluded.expires_at
`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// PruneExpired deletes all rows whose expiry has passed. Intended to be
// called periodically from a background goroutine.
func (s *SQLite) PruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM chat_histories WHERE expires_at < ?
`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache: prune: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS cache_expires_at ON cache(expires_at);
`

// SQLiteAdapter persists entries in a SQLite database. Expiry times are
// stored as Unix milliseconds, zero meaning no expiry.
type SQLiteAdapter struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteAdapter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLiteAdapter{db: db, now: time.Now}, nil
}

// WithClock replaces the adapter's time source.
func (s *SQLiteAdapter) WithClock(now func() time.Time) *SQLiteAdapter {
	s.now = now
	return s
}

func (s *SQLiteAdapter) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *SQLiteAdapter) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.nowMillis(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap("get", err)
	}
	return json.RawMessage(value), true, nil
}

func (s *SQLiteAdapter) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, []byte(value), expires,
	)
	return s.wrap("set", err)
}

func (s *SQLiteAdapter) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	return s.wrap("delete", err)
}

func (s *SQLiteAdapter) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache WHERE expires_at = 0 OR expires_at > ?`, s.nowMillis(),
	).Scan(&n)
	return n, s.wrap("len", err)
}

func (s *SQLiteAdapter) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at <> 0 AND expires_at <= ?`, s.nowMillis(),
	)
	if err != nil {
		return 0, s.wrap("purge", err)
	}
	n, err := res.RowsAffected()
	return int(n), s.wrap("purge", err)
}

func (s *SQLiteAdapter) Close() error {
	return s.db.Close()
}

func (s *SQLiteAdapter) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return ErrAdapterClosed
	}
	return fmt.Errorf("store: sqlite %s: %w", op, err)
}

package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable backing for time-bounded caches. A single store file
// holds one row set per namespace so every entity kind (teams, repos, orgs,
// http) shares the same on-disk lifecycle.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens a cache store at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache store: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running cache migrations: %w", err)
	}

	return s, nil
}

// OpenMemory creates an in-memory cache store (useful for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory cache store: %w", err)
	}

	s := &Store{db: db, path: ":memory:"}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running cache migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    expire_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_cache_expire ON cache_entries(expire_at);
`

// Close closes the underlying database. Caches created from this store must
// be saved before closing.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(namespace string) (map[string]entry, error) {
	rows, err := s.db.Query(`SELECT key, value, expire_at FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("loading namespace %s: %w", namespace, err)
	}
	defer rows.Close()

	entries := make(map[string]entry)
	for rows.Next() {
		var (
			key      string
			value    []byte
			expireAt int64
		)
		if err := rows.Scan(&key, &value, &expireAt); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}
		e := entry{value: value}
		if expireAt != 0 {
			e.expireAt = time.UnixMilli(expireAt)
		}
		entries[key] = e
	}
	return entries, rows.Err()
}

func (s *Store) persist(namespace string, entries map[string]entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("clearing namespace %s: %w", namespace, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO cache_entries (namespace, key, value, expire_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing cache insert: %w", err)
	}
	defer stmt.Close()

	for key, e := range entries {
		var expireAt int64
		if !e.expireAt.IsZero() {
			expireAt = e.expireAt.UnixMilli()
		}
		if _, err := stmt.Exec(namespace, key, e.value, expireAt); err != nil {
			return fmt.Errorf("persisting key %s: %w", key, err)
		}
	}

	return tx.Commit()
}

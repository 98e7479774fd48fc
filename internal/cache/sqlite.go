package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/awase/internal/m2"
)

// SQLiteStore is a content-addressed edit cache in a single SQLite database.
// Keys are content hashes, so a key is written at most once: inserts use
// INSERT OR IGNORE, which makes concurrent population from parallel runs
// race-safe (last-writer-wins would also be safe, since value-identical).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the cache database at dbPath.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS edit_cache (
		key TEXT PRIMARY KEY,
		entries TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Key is content-derived; the system name is irrelevant.
func (s *SQLiteStore) Key(system string, source, hypothesis []string) string {
	return ContentKey(source, hypothesis)
}

// Get returns the cached entries for key if present.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]m2.Entry, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT entries FROM edit_cache WHERE key = ?`, key).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entries, err := m2.Parse(strings.NewReader(text))
	if err != nil {
		return nil, false, fmt.Errorf("corrupted cache entry %s: %w", key, err)
	}
	return entries, true, nil
}

// Put stores entries under key, keeping the first write when racing.
func (s *SQLiteStore) Put(ctx context.Context, key string, entries []m2.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO edit_cache (key, entries) VALUES (?, ?)`,
		key, m2.Format(entries))
	return err
}

// Delete removes the entry for key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM edit_cache WHERE key = ?`, key)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

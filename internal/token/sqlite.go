package token

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNotFound is returned by a backend when a key has no stored value.
var ErrNotFound = errors.New("token: key not found")

// SQLiteBackend is the durable backend, storing credentials in a small
// SQLite database so a session survives process restarts.
type SQLiteBackend struct {
	sql *sql.DB
}

// OpenSQLite opens (or creates) the credential database at the given path.
// Use ":memory:" for an in-memory database (useful for tests).
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating credential directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating credentials table: %w", err)
	}

	return &SQLiteBackend{sql: sqlDB}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.sql.Close()
}

// Get returns the stored value, or ErrNotFound when absent.
func (b *SQLiteBackend) Get(key string) (string, error) {
	var value string
	err := b.sql.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a value, replacing any previous one.
func (b *SQLiteBackend) Set(key, value string) error {
	_, err := b.sql.Exec(
		`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.DateTime),
	)
	return err
}

// Remove deletes a key. Removing an absent key is a no-op.
func (b *SQLiteBackend) Remove(key string) error {
	_, err := b.sql.Exec(`DELETE FROM credentials WHERE key = ?`, key)
	return err
}

// Keys returns all stored keys.
func (b *SQLiteBackend) Keys() ([]string, error) {
	rows, err := b.sql.Query(`SELECT key FROM credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

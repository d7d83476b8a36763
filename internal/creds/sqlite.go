package creds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists at most one session in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the session table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			api_key TEXT NOT NULL DEFAULT '',
			expiry INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the stored session, or nil when none is stored.
func (s *SQLiteStore) Load(ctx context.Context) (*Credentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, api_key, expiry FROM session WHERE id = 1`)

	var (
		c      Credentials
		expiry int64
	)
	if err := row.Scan(&c.Token, &c.APIKey, &expiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if expiry > 0 {
		c.Expiry = time.Unix(expiry, 0)
	}

	return &c, nil
}

// Save stores the session, replacing any previous one.
func (s *SQLiteStore) Save(ctx context.Context, c Credentials) error {
	var expiry int64
	if !c.Expiry.IsZero() {
		expiry = c.Expiry.Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session (id, token, api_key, expiry) VALUES (1, ?, ?, ?)`,
		c.Token, c.APIKey, expiry)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete removes the stored session. Deleting an empty store is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/storage"

	_ "modernc.org/sqlite"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store, creating the parent
// directory if needed.
func NewFileStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session methods

func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session (id, token, user_json, saved_at)
		VALUES (1, ?, ?, ?)
	`, session.Token, string(userJSON), session.SavedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context) (*storage.Session, error) {
	var session storage.Session
	var userJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_json, saved_at FROM session WHERE id = 1
	`).Scan(&session.Token, &userJSON, &session.SavedAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Resource: "session", ID: storage.SessionKey}
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(userJSON), &session.User); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE id = 1")
	return err
}

// Reading cache methods

func (s *Store) SaveReadings(ctx context.Context, owner string, readings []bloodpressure.Reading) error {
	if readings == nil {
		readings = []bloodpressure.Reading{}
	}
	readingsJSON, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reading_cache (owner, readings, saved_at)
		VALUES (?, ?, ?)
	`, owner, string(readingsJSON), time.Now())
	return err
}

func (s *Store) GetReadings(ctx context.Context, owner string) (*storage.CachedReadings, error) {
	cached := storage.CachedReadings{Owner: owner}
	var readingsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT readings, saved_at FROM reading_cache WHERE owner = ?
	`, owner).Scan(&readingsJSON, &cached.SavedAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Resource: "readings", ID: owner}
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(readingsJSON), &cached.Readings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
	}
	return &cached, nil
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)

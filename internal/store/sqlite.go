// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session and contact persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			name                TEXT NOT NULL UNIQUE,
			token               TEXT NOT NULL DEFAULT '',
			is_active           INTEGER NOT NULL DEFAULT 1,
			reject_call_enabled INTEGER NOT NULL DEFAULT 0,
			reject_window_start TEXT,
			reject_window_end   TEXT,
			updated_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(name, is_active);

		CREATE TABLE IF NOT EXISTS contacts (
			session_name TEXT NOT NULL,
			identifier   TEXT NOT NULL,
			phone        TEXT NOT NULL,
			resolved_at  TEXT NOT NULL,
			PRIMARY KEY (session_name, identifier)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetActiveSession returns the active session with the given name.
func (s *SQLiteStore) GetActiveSession(ctx context.Context, name string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, token, is_active, reject_call_enabled,
		       reject_window_start, reject_window_end, updated_at
		FROM sessions
		WHERE name = ? AND is_active = 1
	`, name)
	return scanSQLiteSession(row)
}

// DeactivateSession flips is_active off for an active session.
func (s *SQLiteStore) DeactivateSession(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = 0, updated_at = ?
		WHERE name = ? AND is_active = 1
	`, time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}
	if n > 0 {
		s.logger.Debug("session deactivated", "session", name)
	}
	return n > 0, nil
}

// UpsertSession creates or replaces a session keyed by name.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (name, token, is_active, reject_call_enabled,
		                      reject_window_start, reject_window_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			is_active = excluded.is_active,
			reject_call_enabled = excluded.reject_call_enabled,
			reject_window_start = excluded.reject_window_start,
			reject_window_end = excluded.reject_window_end,
			updated_at = excluded.updated_at
		RETURNING id
	`, sess.Name, sess.Token, sess.IsActive, sess.RejectCallEnabled,
		formatTimeOfDay(sess.RejectWindowStart), formatTimeOfDay(sess.RejectWindowEnd),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano))

	if err := row.Scan(&sess.ID); err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions ordered by name.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, token, is_active, reject_call_enabled,
		       reject_window_start, reject_window_end, updated_at
		FROM sessions
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SaveContact stores or refreshes a resolved identifier.
func (s *SQLiteStore) SaveContact(ctx context.Context, c *ContactMapping) error {
	if c.ResolvedAt.IsZero() {
		c.ResolvedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (session_name, identifier, phone, resolved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_name, identifier) DO UPDATE SET
			phone = excluded.phone,
			resolved_at = excluded.resolved_at
	`, c.SessionName, c.Identifier, c.Phone, c.ResolvedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving contact: %w", err)
	}
	return nil
}

// GetContact looks up a resolved identifier.
func (s *SQLiteStore) GetContact(ctx context.Context, sessionName, identifier string) (*ContactMapping, error) {
	var c ContactMapping
	var resolvedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_name, identifier, phone, resolved_at
		FROM contacts
		WHERE session_name = ? AND identifier = ?
	`, sessionName, identifier).Scan(&c.SessionName, &c.Identifier, &c.Phone, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting contact: %w", err)
	}
	c.ResolvedAt, err = time.Parse(time.RFC3339Nano, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing resolved_at: %w", err)
	}
	return &c, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*Session, error) {
	var sess Session
	var start, end sql.NullString
	var updatedAt string
	err := row.Scan(&sess.ID, &sess.Name, &sess.Token, &sess.IsActive, &sess.RejectCallEnabled,
		&start, &end, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if sess.RejectWindowStart, err = parseOptionalTimeOfDay(nullStringPtr(start)); err != nil {
		return nil, fmt.Errorf("session %q reject_window_start: %w", sess.Name, err)
	}
	if sess.RejectWindowEnd, err = parseOptionalTimeOfDay(nullStringPtr(end)); err != nil {
		return nil, fmt.Errorf("session %q reject_window_end: %w", sess.Name, err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &sess, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

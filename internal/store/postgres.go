// ABOUTME: PostgreSQL implementation of the Store interface using pgx connection pools
// ABOUTME: Used when the panel's session table lives in the shared Postgres database

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface on a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id                  BIGSERIAL PRIMARY KEY,
			name                TEXT NOT NULL UNIQUE,
			token               TEXT NOT NULL DEFAULT '',
			is_active           BOOLEAN NOT NULL DEFAULT TRUE,
			reject_call_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			reject_window_start TEXT,
			reject_window_end   TEXT,
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS contacts (
			session_name TEXT NOT NULL,
			identifier   TEXT NOT NULL,
			phone        TEXT NOT NULL,
			resolved_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_name, identifier)
		);
	`)
	return err
}

const pgSessionColumns = `id, name, token, is_active, reject_call_enabled,
	reject_window_start, reject_window_end, updated_at`

// GetActiveSession returns the active session with the given name.
func (s *PostgresStore) GetActiveSession(ctx context.Context, name string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSessionColumns+` FROM sessions WHERE name = $1 AND is_active`, name)
	return scanPgSession(row)
}

// DeactivateSession flips is_active off for an active session.
func (s *PostgresStore) DeactivateSession(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE, updated_at = now() WHERE name = $1 AND is_active`, name)
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("session deactivated", "session", name)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertSession creates or replaces a session keyed by name.
func (s *PostgresStore) UpsertSession(ctx context.Context, sess *Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (name, token, is_active, reject_call_enabled,
		                      reject_window_start, reject_window_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			token = EXCLUDED.token,
			is_active = EXCLUDED.is_active,
			reject_call_enabled = EXCLUDED.reject_call_enabled,
			reject_window_start = EXCLUDED.reject_window_start,
			reject_window_end = EXCLUDED.reject_window_end,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, sess.Name, sess.Token, sess.IsActive, sess.RejectCallEnabled,
		formatTimeOfDay(sess.RejectWindowStart), formatTimeOfDay(sess.RejectWindowEnd),
		sess.UpdatedAt).Scan(&sess.ID)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions ordered by name.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgSessionColumns+` FROM sessions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SaveContact stores or refreshes a resolved identifier.
func (s *PostgresStore) SaveContact(ctx context.Context, c *ContactMapping) error {
	if c.ResolvedAt.IsZero() {
		c.ResolvedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (session_name, identifier, phone, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_name, identifier) DO UPDATE SET
			phone = EXCLUDED.phone,
			resolved_at = EXCLUDED.resolved_at
	`, c.SessionName, c.Identifier, c.Phone, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("saving contact: %w", err)
	}
	return nil
}

// GetContact looks up a resolved identifier.
func (s *PostgresStore) GetContact(ctx context.Context, sessionName, identifier string) (*ContactMapping, error) {
	var c ContactMapping
	err := s.pool.QueryRow(ctx, `
		SELECT session_name, identifier, phone, resolved_at
		FROM contacts
		WHERE session_name = $1 AND identifier = $2
	`, sessionName, identifier).Scan(&c.SessionName, &c.Identifier, &c.Phone, &c.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting contact: %w", err)
	}
	return &c, nil
}

// Ping checks the pool can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgSession(row pgx.Row) (*Session, error) {
	var sess Session
	var start, end *string
	err := row.Scan(&sess.ID, &sess.Name, &sess.Token, &sess.IsActive, &sess.RejectCallEnabled,
		&start, &end, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if sess.RejectWindowStart, err = parseOptionalTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("session %q reject_window_start: %w", sess.Name, err)
	}
	if sess.RejectWindowEnd, err = parseOptionalTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("session %q reject_window_end: %w", sess.Name, err)
	}
	return &sess, nil
}

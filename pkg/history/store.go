// Package history keeps an audit trail of finished fill sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entrhq/clippypour/pkg/fill"
)

// Schema for the history tables. Open applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	form_url TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	verify INTEGER NOT NULL,
	completed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	failure_kind TEXT,
	failure_message TEXT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE TABLE IF NOT EXISTS attempts (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	selector TEXT NOT NULL,
	label TEXT,
	outcome TEXT NOT NULL,
	reason TEXT,
	retry_count INTEGER NOT NULL,
	PRIMARY KEY (session_id, position)
);
`

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not in history")

// Entry is one stored session. Attempt values are never stored.
type Entry struct {
	ID             string         `json:"id"`
	FormURL        string         `json:"form_url"`
	Status         fill.Status    `json:"status"`
	Mode           fill.Mode      `json:"mode"`
	Verify         bool           `json:"verify"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	FailureKind    string         `json:"failure_kind,omitempty"`
	FailureMessage string         `json:"failure_message,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at"`
	Attempts       []fill.Attempt `json:"attempts,omitempty"`
}

// Store persists entries to a SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.clippypour/history.db.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clippypour", "history.db"), nil
}

// Open opens (creating if needed) the database at path and applies Schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps ":memory:" a single database and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a terminal session, replacing an earlier record with the
// same id.
func (s *Store) Record(ctx context.Context, snap fill.Snapshot) error {
	if !snap.Status.Terminal() {
		return fmt.Errorf("session %s is %s, not finished", snap.ID, snap.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var kind, message sql.NullString
	if snap.Failure != nil {
		kind = sql.NullString{String: string(snap.Failure.Kind), Valid: true}
		message = sql.NullString{String: snap.Failure.Message, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, snap.ID); err != nil {
		return fmt.Errorf("replace session %s: %w", snap.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions
		(id, form_url, status, mode, verify, completed, failed, failure_kind, failure_message, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.FormURL, string(snap.Status), string(snap.Mode), snap.Verify,
		snap.Completed(), len(snap.Failed()), kind, message,
		snap.StartedAt.UnixMilli(), snap.EndedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert session %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO attempts
		(session_id, position, selector, label, outcome, reason, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempts: %w", err)
	}
	defer stmt.Close()

	for i, a := range snap.Attempts {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, a.Selector, a.Label, string(a.Outcome), a.Reason, a.RetryCount); err != nil {
			return fmt.Errorf("insert attempt %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// List returns the most recent sessions first, without attempts. A limit of
// zero or less means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, form_url, status, mode, verify, completed, failed, failure_kind, failure_message, started_at, ended_at
		FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one session with its attempts in field order.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, form_url, status, mode, verify, completed, failed, failure_kind, failure_message, started_at, ended_at
		FROM sessions WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT selector, label, outcome, reason, retry_count
		FROM attempts WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a             fill.Attempt
			label, reason sql.NullString
			outcome       string
		)
		if err := rows.Scan(&a.Selector, &label, &outcome, &reason, &a.RetryCount); err != nil {
			return Entry{}, fmt.Errorf("scan attempt: %w", err)
		}
		a.Label, a.Reason, a.Outcome = label.String, reason.String, fill.Outcome(outcome)
		e.Attempts = append(e.Attempts, a)
	}
	return e, rows.Err()
}

// Prune deletes sessions that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e              Entry
		status, mode   string
		kind, message  sql.NullString
		started, ended int64
	)
	if err := row.Scan(&e.ID, &e.FormURL, &status, &mode, &e.Verify, &e.Completed, &e.Failed,
		&kind, &message, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan session: %w", err)
	}
	e.Status, e.Mode = fill.Status(status), fill.Mode(mode)
	e.FailureKind, e.FailureMessage = kind.String, message.String
	e.StartedAt = time.UnixMilli(started).UTC()
	e.EndedAt = time.UnixMilli(ended).UTC()
	return e, nil
}

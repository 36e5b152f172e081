// Package sqlite implements the session journal on SQLite via the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/release-signoff/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_key        TEXT PRIMARY KEY,
	service_name       TEXT NOT NULL,
	version            TEXT NOT NULL,
	day1_date          TEXT NOT NULL DEFAULT '',
	day2_date          TEXT NOT NULL DEFAULT '',
	destination        TEXT NOT NULL,
	coordinator_handle TEXT NOT NULL DEFAULT '',
	cutoff_time        TEXT NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS change_items (
	session_key TEXT NOT NULL REFERENCES sessions(session_key) ON DELETE CASCADE,
	item_id     INTEGER NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	PRIMARY KEY (session_key, item_id)
);

CREATE TABLE IF NOT EXISTS session_events (
	id              TEXT PRIMARY KEY,
	session_key     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	author          TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	pending_authors TEXT NOT NULL DEFAULT '',
	occurred_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_session_key ON session_events(session_key);
`

// Store is a SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens the journal database at the given DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	// The driver serialises access per connection; a single connection keeps
	// writer contention out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the journal schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// RecordSessionStarted stores the session and its change items.
func (s *Store) RecordSessionStarted(ctx context.Context, record persistence.SessionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_key, service_name, version, day1_date, day2_date, destination, coordinator_handle, cutoff_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionKey,
		record.ServiceName,
		record.Version,
		record.Day1Date,
		record.Day2Date,
		record.Destination,
		record.CoordinatorHandle,
		record.CutoffTime.UTC().Format(time.RFC3339Nano),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert session: %w", err)
	}

	for position, item := range record.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_items (session_key, item_id, title, author, position)
			VALUES (?, ?, ?, ?, ?)`,
			record.SessionKey, item.ID, item.Title, item.Author, position,
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert change item %d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// RecordEvent appends one lifecycle event.
func (s *Store) RecordEvent(ctx context.Context, event persistence.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_events (id, session_key, kind, author, outcome, pending_authors, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.SessionKey,
		event.Kind,
		event.Author,
		event.Outcome,
		strings.Join(event.PendingAuthors, ","),
		event.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert event: %w", err)
	}
	return nil
}

// GetSession loads a stored session record and its items.
func (s *Store) GetSession(ctx context.Context, sessionKey string) (persistence.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_key, service_name, version, day1_date, day2_date, destination, coordinator_handle, cutoff_time, created_at
		FROM sessions WHERE session_key = ?`, sessionKey)

	var record persistence.SessionRecord
	var cutoff, created string
	err := row.Scan(
		&record.SessionKey,
		&record.ServiceName,
		&record.Version,
		&record.Day1Date,
		&record.Day2Date,
		&record.Destination,
		&record.CoordinatorHandle,
		&cutoff,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.SessionRecord{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.SessionRecord{}, fmt.Errorf("sqlite: select session: %w", err)
	}
	if record.CutoffTime, err = parseStoredTime(cutoff); err != nil {
		return persistence.SessionRecord{}, err
	}
	if record.CreatedAt, err = parseStoredTime(created); err != nil {
		return persistence.SessionRecord{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, title, author FROM change_items
		WHERE session_key = ? ORDER BY position ASC`, sessionKey)
	if err != nil {
		return persistence.SessionRecord{}, fmt.Errorf("sqlite: select change items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item persistence.ItemRecord
		if err := rows.Scan(&item.ID, &item.Title, &item.Author); err != nil {
			return persistence.SessionRecord{}, fmt.Errorf("sqlite: scan change item: %w", err)
		}
		record.Items = append(record.Items, item)
	}
	if err := rows.Err(); err != nil {
		return persistence.SessionRecord{}, fmt.Errorf("sqlite: iterate change items: %w", err)
	}
	return record, nil
}

// ListEvents returns a session's events in chronological insertion order.
func (s *Store) ListEvents(ctx context.Context, sessionKey string) ([]persistence.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, kind, author, outcome, pending_authors, occurred_at
		FROM session_events WHERE session_key = ? ORDER BY occurred_at ASC, rowid ASC`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select events: %w", err)
	}
	defer rows.Close()

	var events []persistence.EventRecord
	for rows.Next() {
		var event persistence.EventRecord
		var pending, occurred string
		if err := rows.Scan(&event.ID, &event.SessionKey, &event.Kind, &event.Author, &event.Outcome, &pending, &occurred); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if pending != "" {
			event.PendingAuthors = strings.Split(pending, ",")
		}
		if event.OccurredAt, err = parseStoredTime(occurred); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate events: %w", err)
	}
	return events, nil
}

func parseStoredTime(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse stored time %q: %w", value, err)
	}
	return parsed, nil
}

// Package persistence defines the durable session journal. The in-memory
// session store remains authoritative; the journal is a write-behind audit
// record so a release's sign-off history survives the process.
package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("persistence: not found")

// SessionRecord captures the immutable shape of a session at creation time.
type SessionRecord struct {
	SessionKey        string
	ServiceName       string
	Version           string
	Day1Date          string
	Day2Date          string
	Destination       string
	CoordinatorHandle string
	CutoffTime        time.Time
	CreatedAt         time.Time
	Items             []ItemRecord
}

// ItemRecord is one change item attached to a session record.
type ItemRecord struct {
	ID     int
	Title  string
	Author string
}

// Event kinds stored in the journal.
const (
	EventAcknowledged = "acknowledged"
	EventResolved     = "resolved"
)

// EventRecord is one journal entry for a session.
type EventRecord struct {
	ID             string
	SessionKey     string
	Kind           string
	Author         string
	Outcome        string
	PendingAuthors []string
	OccurredAt     time.Time
}

// Journal stores session records and their lifecycle events.
type Journal interface {
	RecordSessionStarted(ctx context.Context, record SessionRecord) error
	RecordEvent(ctx context.Context, event EventRecord) error
	GetSession(ctx context.Context, sessionKey string) (SessionRecord, error)
	ListEvents(ctx context.Context, sessionKey string) ([]EventRecord, error)
}

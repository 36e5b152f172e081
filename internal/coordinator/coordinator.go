// Package coordinator implements the release sign-off workflow: it opens a
// tracked session per release, announces it, collects acknowledgements from
// authors, fires periodic reminders, and resolves the session at its cutoff.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/release-signoff/internal/notify"
	"github.com/example/release-signoff/internal/release"
	"github.com/example/release-signoff/internal/scheduler"
)

// Journal records session lifecycle events for post-release auditing. All
// methods are best effort: failures are logged and never block the workflow.
type Journal interface {
	SessionStarted(ctx context.Context, session *release.Session) error
	AuthorAcknowledged(ctx context.Context, sessionKey, author string, at time.Time) error
	SessionResolved(ctx context.Context, sessionKey, outcome string, pendingAuthors []string, at time.Time) error
}

// Journal outcome labels.
const (
	OutcomeCompletedEarly  = "completed_early"
	OutcomeCutoffComplete  = "cutoff_complete"
	OutcomeCutoffEscalated = "cutoff_escalated"
	OutcomeAborted         = "aborted"
)

// Config tunes reminder cadence and delivery retry policy.
type Config struct {
	// ReminderInterval is the fixed cadence for pending-author reminders.
	ReminderInterval time.Duration
	// ReminderRetryDelay is the pause before the single reminder retry.
	ReminderRetryDelay time.Duration
	// CutoffDeliveryAttempts bounds delivery attempts for the cutoff
	// resolution message, the final authoritative release gate.
	CutoffDeliveryAttempts int
	// CutoffRetryBackoff is the pause between cutoff delivery attempts.
	CutoffRetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = 2 * time.Hour
	}
	if c.ReminderRetryDelay <= 0 {
		c.ReminderRetryDelay = 30 * time.Second
	}
	if c.CutoffDeliveryAttempts <= 0 {
		c.CutoffDeliveryAttempts = 3
	}
	if c.CutoffRetryBackoff <= 0 {
		c.CutoffRetryBackoff = 30 * time.Second
	}
	return c
}

// Coordinator owns session creation, event-driven acknowledgement, manual
// status/abort commands, and the scheduled reminder and cutoff jobs.
type Coordinator struct {
	store   *release.Store
	sched   scheduler.Scheduler
	sink    notify.Sink
	journal Journal
	cfg     Config
	now     func() time.Time
	sleep   func(time.Duration)
	logger  *slog.Logger
}

// NewCoordinator wires dependencies for the sign-off workflow. journal may be
// nil when no durable record is wanted.
func NewCoordinator(store *release.Store, sched scheduler.Scheduler, sink notify.Sink, journal Journal, cfg Config, now func() time.Time) *Coordinator {
	return NewCoordinatorWithLogger(store, sched, sink, journal, cfg, now, nil)
}

// NewCoordinatorWithLogger is NewCoordinator with an explicit base logger.
func NewCoordinatorWithLogger(store *release.Store, sched scheduler.Scheduler, sink notify.Sink, journal Journal, cfg Config, now func() time.Time, logger *slog.Logger) *Coordinator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		sched:   sched,
		sink:    sink,
		journal: journal,
		cfg:     cfg.withDefaults(),
		now:     now,
		sleep:   time.Sleep,
		logger:  logger,
	}
}

// SessionMetadata carries the release parameters supplied by the external
// trigger. CutoffTime is an ISO-8601 timestamp; a malformed value is a
// validation error at session start, never a silent fallback.
type SessionMetadata struct {
	ServiceName       string
	Version           string
	Day1Date          string
	Day2Date          string
	CutoffTime        string
	CoordinatorHandle string
	Destination       string
}

// ChangeItemInput is one unit requiring sign-off, as supplied by the trigger.
type ChangeItemInput struct {
	ID     int
	Title  string
	Author string
}

// StartSessionParams bundles the inputs to StartSession.
type StartSessionParams struct {
	Items    []ChangeItemInput
	Metadata SessionMetadata
}

// StartSessionResult identifies the announced session.
type StartSessionResult struct {
	Destination string
	SessionKey  string
}

// StartSession validates the release, announces it, stores the session keyed
// by the announcement's delivery id, and schedules the reminder cadence plus
// one cutoff job. On announcement failure nothing is stored or scheduled.
func (c *Coordinator) StartSession(ctx context.Context, params StartSessionParams) (StartSessionResult, error) {
	logger := operationLogger(ctx, c.logger, "start_session", "service", params.Metadata.ServiceName, "version", params.Metadata.Version)

	cutoff, vErr := validateStart(params, c.now())
	if vErr.HasErrors() {
		logger.Info("rejected release trigger", "error_kind", ErrorKind(vErr))
		return StartSessionResult{}, vErr
	}

	items := make([]release.ChangeItem, len(params.Items))
	for i, input := range params.Items {
		items[i] = release.ChangeItem{ID: input.ID, Title: input.Title, Author: strings.TrimSpace(input.Author)}
	}

	session := &release.Session{
		ServiceName:       params.Metadata.ServiceName,
		Version:           params.Metadata.Version,
		Day1Date:          params.Metadata.Day1Date,
		Day2Date:          params.Metadata.Day2Date,
		CutoffTime:        cutoff,
		CoordinatorHandle: params.Metadata.CoordinatorHandle,
		Destination:       params.Metadata.Destination,
		Items:             items,
		CreatedAt:         c.now(),
	}

	deliveryID, err := c.sink.Send(ctx, session.Destination, announcementMessage(session))
	if err != nil {
		logger.Error("failed to send announcement", "error", err)
		return StartSessionResult{}, fmt.Errorf("announce release: %w", err)
	}

	session.SessionKey = deliveryID
	pending := session.PendingAuthors()
	if len(pending) > 0 {
		session.ReminderJobIDs = []string{reminderJobID(deliveryID)}
		session.CutoffJobID = cutoffJobID(deliveryID)
	}
	c.store.Put(session)
	c.record(ctx, logger, func(j Journal) error { return j.SessionStarted(ctx, session.Clone()) })

	if len(pending) > 0 {
		key := deliveryID
		c.sched.ScheduleEvery(c.cfg.ReminderInterval, reminderJobID(key), func() { c.handleReminder(key) })
		c.sched.ScheduleAt(cutoff, cutoffJobID(key), func() { c.handleCutoff(key) })
	}

	logger.Info("session started",
		"session_key", deliveryID,
		"destination", session.Destination,
		"items", len(items),
		"pending_authors", len(pending),
	)
	return StartSessionResult{Destination: session.Destination, SessionKey: deliveryID}, nil
}

// AckResult reports the effect of an acknowledgement.
type AckResult struct {
	// Acknowledged reports whether the actor owned any pending items.
	Acknowledged bool
	// Completed reports whether this acknowledgement emptied the pending set.
	Completed bool
	// Frozen reports that the session was already resolved by its cutoff and
	// the acknowledgement was dropped by policy.
	Frozen bool
	// PendingAuthors is the pending set after the call.
	PendingAuthors []string
}

// Acknowledge marks every pending item owned by the actor as signed off. The
// completion check runs in the same critical section as the mutation so the
// early-completion notification fires exactly once even when two final
// acknowledgements race.
func (c *Coordinator) Acknowledge(ctx context.Context, sessionKey, actorIdentity string) (AckResult, error) {
	logger := operationLogger(ctx, c.logger, "acknowledge", "session_key", sessionKey, "actor", actorIdentity)

	var (
		result   AckResult
		snapshot *release.Session
	)
	err := c.store.Update(sessionKey, func(session *release.Session) bool {
		if session.Resolved() {
			result.Frozen = true
			result.PendingAuthors = session.PendingAuthors()
			return false
		}
		wasPending := len(session.PendingAuthors()) > 0
		result.Acknowledged = session.AcknowledgeAuthor(actorIdentity)
		result.PendingAuthors = session.PendingAuthors()
		result.Completed = result.Acknowledged && wasPending && len(result.PendingAuthors) == 0
		if result.Completed || result.Acknowledged {
			snapshot = session.Clone()
		}
		return result.Completed
	})
	if err != nil {
		logger.Info("acknowledgement for unknown session")
		return AckResult{}, ErrNotFound
	}

	switch {
	case result.Frozen:
		logger.Info("acknowledgement after cutoff dropped", "error_kind", ErrorKind(ErrSessionResolved))
	case result.Completed:
		c.cancelSessionJobs(snapshot)
		c.record(ctx, logger, func(j Journal) error { return j.AuthorAcknowledged(ctx, sessionKey, actorIdentity, c.now()) })
		c.record(ctx, logger, func(j Journal) error {
			return j.SessionResolved(ctx, sessionKey, OutcomeCompletedEarly, nil, c.now())
		})
		if _, err := c.sink.Send(ctx, snapshot.Destination, earlyCompletionMessage(snapshot)); err != nil {
			logger.Error("failed to send early-completion notice", "error", err)
		}
		logger.Info("all authors signed off early")
	case result.Acknowledged:
		c.record(ctx, logger, func(j Journal) error { return j.AuthorAcknowledged(ctx, sessionKey, actorIdentity, c.now()) })
		if _, err := c.sink.Send(ctx, snapshot.Destination, confirmationMessage(actorIdentity)); err != nil {
			logger.Error("failed to send acknowledgement confirmation", "error", err)
		}
		logger.Info("author signed off", "pending_authors", len(result.PendingAuthors))
	default:
		logger.Info("acknowledgement without pending items")
	}

	return result, nil
}

// Status returns a formatted sign-off report for the session. Pure read.
func (c *Coordinator) Status(ctx context.Context, sessionKey string) (string, error) {
	session, err := c.store.Get(sessionKey)
	if err != nil {
		return "", ErrNotFound
	}
	return statusMessage(session, c.now()), nil
}

// Sessions returns snapshots of all live sessions for listing interfaces.
func (c *Coordinator) Sessions() []*release.Session {
	return c.store.List()
}

// Abort cancels the session's scheduled jobs, removes it from the store, and
// posts a cancellation notice. A second call observes ErrNotFound.
func (c *Coordinator) Abort(ctx context.Context, sessionKey string) error {
	logger := operationLogger(ctx, c.logger, "abort", "session_key", sessionKey)

	var snapshot *release.Session
	err := c.store.Update(sessionKey, func(session *release.Session) bool {
		snapshot = session.Clone()
		return true
	})
	if err != nil {
		return ErrNotFound
	}

	c.cancelSessionJobs(snapshot)
	c.record(ctx, logger, func(j Journal) error {
		return j.SessionResolved(ctx, sessionKey, OutcomeAborted, snapshot.PendingAuthors(), c.now())
	})
	if _, err := c.sink.Send(ctx, snapshot.Destination, abortMessage(snapshot)); err != nil {
		logger.Error("failed to send abort notice", "error", err)
	}
	logger.Info("session aborted", "service", snapshot.ServiceName, "version", snapshot.Version)
	return nil
}

// handleReminder is invoked by the scheduler on the reminder cadence. It reads
// the pending set and nags still-pending authors; a failed delivery is retried
// once after a short delay, then dropped until the next scheduled firing.
func (c *Coordinator) handleReminder(sessionKey string) {
	ctx := context.Background()
	logger := operationLogger(ctx, c.logger, "reminder", "session_key", sessionKey, "job_id", reminderJobID(sessionKey))

	session, err := c.store.Get(sessionKey)
	if err != nil {
		// Cancellation and firing can race; the session is gone, stop nagging.
		c.sched.Cancel(reminderJobID(sessionKey))
		return
	}

	pending := session.PendingAuthors()
	if len(pending) == 0 || session.Resolved() {
		// The completion or cutoff path should already have cancelled this
		// job; guard against a reminder already in flight when it did.
		c.sched.Cancel(reminderJobID(sessionKey))
		return
	}

	text := reminderMessage(session, pending, session.CutoffTime.Sub(c.now()))
	if _, err := c.sink.Send(ctx, session.Destination, text); err != nil {
		logger.Warn("reminder delivery failed, retrying once", "error", err)
		c.sleep(c.cfg.ReminderRetryDelay)
		if _, err := c.sink.Send(ctx, session.Destination, text); err != nil {
			logger.Error("reminder delivery failed after retry, dropping this firing", "error", err)
			return
		}
	}
	logger.Info("reminder sent", "pending_authors", len(pending))
}

// handleCutoff is invoked by the scheduler at the cutoff time. It freezes the
// session, then announces either readiness or an escalation naming the
// still-pending authors. Delivery is retried with bounded backoff because this
// is the final authoritative release gate.
func (c *Coordinator) handleCutoff(sessionKey string) {
	ctx := context.Background()
	logger := operationLogger(ctx, c.logger, "cutoff", "session_key", sessionKey, "job_id", cutoffJobID(sessionKey))

	var snapshot *release.Session
	err := c.store.Update(sessionKey, func(session *release.Session) bool {
		if session.Resolved() {
			return false
		}
		resolvedAt := c.now()
		session.ResolvedAt = &resolvedAt
		snapshot = session.Clone()
		return false
	})
	if err != nil || snapshot == nil {
		return
	}

	c.sched.Cancel(reminderJobID(sessionKey))

	pending := snapshot.PendingAuthors()
	outcome := OutcomeCutoffComplete
	text := cutoffSuccessMessage(snapshot)
	if len(pending) > 0 {
		outcome = OutcomeCutoffEscalated
		text = cutoffEscalationMessage(snapshot, pending)
	}
	c.record(ctx, logger, func(j Journal) error {
		return j.SessionResolved(ctx, sessionKey, outcome, pending, c.now())
	})

	for attempt := 1; ; attempt++ {
		if _, err := c.sink.Send(ctx, snapshot.Destination, text); err == nil {
			logger.Info("cutoff resolved", "outcome", outcome, "pending_authors", len(pending), "attempts", attempt)
			return
		} else if attempt >= c.cfg.CutoffDeliveryAttempts {
			// No further automatic recovery exists past this point.
			logger.Error("cutoff resolution message undeliverable, manual follow-up required",
				"outcome", outcome, "attempts", attempt, "error", err)
			return
		} else {
			logger.Warn("cutoff resolution delivery failed, backing off", "attempt", attempt, "error", err)
			c.sleep(c.cfg.CutoffRetryBackoff)
		}
	}
}

func (c *Coordinator) cancelSessionJobs(session *release.Session) {
	for _, jobID := range session.ReminderJobIDs {
		c.sched.Cancel(jobID)
	}
	if session.CutoffJobID != "" {
		c.sched.Cancel(session.CutoffJobID)
	}
}

func (c *Coordinator) record(ctx context.Context, logger *slog.Logger, fn func(Journal) error) {
	if c.journal == nil {
		return
	}
	if err := fn(c.journal); err != nil {
		logger.Warn("journal write failed", "error", err)
	}
}

func validateStart(params StartSessionParams, now time.Time) (time.Time, *ValidationError) {
	vErr := &ValidationError{}

	if strings.TrimSpace(params.Metadata.ServiceName) == "" {
		vErr.add("service_name", "service name is required")
	}
	if strings.TrimSpace(params.Metadata.Version) == "" {
		vErr.add("version", "version is required")
	}
	if strings.TrimSpace(params.Metadata.Destination) == "" {
		vErr.add("destination", "destination channel is required")
	}

	var cutoff time.Time
	if strings.TrimSpace(params.Metadata.CutoffTime) == "" {
		vErr.add("cutoff_time", "cutoff time is required")
	} else if parsed, err := time.Parse(time.RFC3339, params.Metadata.CutoffTime); err != nil {
		vErr.add("cutoff_time", "cutoff time must be an ISO-8601 timestamp")
	} else if !parsed.After(now) {
		vErr.add("cutoff_time", "cutoff time must be in the future")
	} else {
		cutoff = parsed
	}

	for _, item := range params.Items {
		if strings.TrimSpace(item.Author) == "" {
			vErr.add("items", fmt.Sprintf("item #%d has no responsible author", item.ID))
		}
	}

	return cutoff, vErr
}

func reminderJobID(sessionKey string) string {
	return "reminder:" + sessionKey
}

func cutoffJobID(sessionKey string) string {
	return "cutoff:" + sessionKey
}

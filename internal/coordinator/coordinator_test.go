package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/release-signoff/internal/release"
	"github.com/example/release-signoff/internal/testfixtures"
)

type journalEntry struct {
	kind    string
	author  string
	outcome string
	pending []string
}

type journalStub struct {
	mu      sync.Mutex
	started []*release.Session
	entries []journalEntry
	err     error
}

func (j *journalStub) SessionStarted(_ context.Context, session *release.Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.started = append(j.started, session)
	return nil
}

func (j *journalStub) AuthorAcknowledged(_ context.Context, _ string, author string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, journalEntry{kind: "acknowledged", author: author})
	return nil
}

func (j *journalStub) SessionResolved(_ context.Context, _ string, outcome string, pending []string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, journalEntry{kind: "resolved", outcome: outcome, pending: pending})
	return nil
}

func (j *journalStub) resolved() []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journalEntry
	for _, entry := range j.entries {
		if entry.kind == "resolved" {
			out = append(out, entry)
		}
	}
	return out
}

type harness struct {
	coordinator *Coordinator
	store       *release.Store
	sched       *testfixtures.FakeScheduler
	sink        *testfixtures.RecorderSink
	journal     *journalStub
	clock       *testfixtures.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   release.NewStore(),
		sched:   testfixtures.NewFakeScheduler(),
		sink:    testfixtures.NewRecorderSink(),
		journal: &journalStub{},
		clock:   testfixtures.NewClock(time.Time{}),
	}
	h.coordinator = NewCoordinator(h.store, h.sched, h.sink, h.journal, Config{}, h.clock.NowFunc())
	h.coordinator.sleep = func(time.Duration) {}
	return h
}

func validParams() StartSessionParams {
	return StartSessionParams{
		Items: []ChangeItemInput{
			{ID: 101, Title: "Fix retry loop", Author: "alice"},
			{ID: 102, Title: "Add webhook filter", Author: "bob"},
			{ID: 103, Title: "Bump deps", Author: "alice"},
		},
		Metadata: SessionMetadata{
			ServiceName:       "payments",
			Version:           "v2.41.0",
			Day1Date:          "2025-06-11",
			Day2Date:          "2025-06-12",
			CutoffTime:        "2025-06-11T17:00:00Z",
			CoordinatorHandle: "<@rc-lead>",
			Destination:       "#release-rc",
		},
	}
}

func mustStart(t *testing.T, h *harness) string {
	t.Helper()
	result, err := h.coordinator.StartSession(context.Background(), validParams())
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	return result.SessionKey
}

func TestCoordinator_StartSession(t *testing.T) {
	t.Run("announces, stores and schedules", func(t *testing.T) {
		h := newHarness(t)

		result, err := h.coordinator.StartSession(context.Background(), validParams())
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if result.SessionKey != "msg-1" {
			t.Fatalf("expected session keyed by delivery id, got %q", result.SessionKey)
		}
		if result.Destination != "#release-rc" {
			t.Fatalf("expected destination to round-trip, got %q", result.Destination)
		}

		sent := h.sink.Sent()
		if len(sent) != 1 {
			t.Fatalf("expected one announcement, got %d messages", len(sent))
		}
		for _, fragment := range []string{"payments", "v2.41.0", "<@alice>", "<@bob>", "#101", "signed off"} {
			if !strings.Contains(sent[0].Text, fragment) {
				t.Fatalf("expected announcement to contain %q, got:\n%s", fragment, sent[0].Text)
			}
		}

		session, err := h.store.Get("msg-1")
		if err != nil {
			t.Fatalf("expected stored session, got %v", err)
		}
		if len(session.ReminderJobIDs) != 1 || session.ReminderJobIDs[0] != "reminder:msg-1" {
			t.Fatalf("expected reminder job id recorded, got %v", session.ReminderJobIDs)
		}
		if session.CutoffJobID != "cutoff:msg-1" {
			t.Fatalf("expected cutoff job id recorded, got %q", session.CutoffJobID)
		}

		if !h.sched.Scheduled("reminder:msg-1") || !h.sched.Scheduled("cutoff:msg-1") {
			t.Fatal("expected reminder and cutoff jobs to be scheduled")
		}
		cutoffJob, _ := h.sched.Job("cutoff:msg-1")
		if !cutoffJob.At.Equal(time.Date(2025, 6, 11, 17, 0, 0, 0, time.UTC)) {
			t.Fatalf("expected cutoff job at the cutoff time, got %v", cutoffJob.At)
		}

		if len(h.journal.started) != 1 || h.journal.started[0].SessionKey != "msg-1" {
			t.Fatal("expected session start to be journaled")
		}
	})

	t.Run("collects validation errors before any delivery", func(t *testing.T) {
		h := newHarness(t)

		params := validParams()
		params.Metadata.ServiceName = "  "
		params.Metadata.Version = ""
		params.Metadata.Destination = ""
		params.Metadata.CutoffTime = "tomorrow-ish"
		params.Items[1].Author = " "

		_, err := h.coordinator.StartSession(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"service_name", "version", "destination", "cutoff_time", "items"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
		if len(h.sink.Sent()) != 0 {
			t.Fatal("expected no delivery for an invalid trigger")
		}
	})

	t.Run("rejects a cutoff that is not in the future", func(t *testing.T) {
		h := newHarness(t)

		params := validParams()
		params.Metadata.CutoffTime = "2025-06-10T08:59:00Z"

		_, err := h.coordinator.StartSession(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["cutoff_time"]; !ok {
			t.Fatalf("expected cutoff_time validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("leaves no state behind when the announcement fails", func(t *testing.T) {
		h := newHarness(t)
		h.sink.FailNext(1)

		_, err := h.coordinator.StartSession(context.Background(), validParams())
		if err == nil {
			t.Fatal("expected an error when the announcement cannot be delivered")
		}
		if h.store.Len() != 0 {
			t.Fatal("expected no session to be stored")
		}
		if h.sched.Scheduled("reminder:msg-1") || h.sched.Scheduled("cutoff:msg-1") {
			t.Fatal("expected no jobs to be scheduled")
		}
		if len(h.journal.started) != 0 {
			t.Fatal("expected nothing to be journaled")
		}
	})

	t.Run("skips scheduling when nothing needs sign-off", func(t *testing.T) {
		h := newHarness(t)

		params := validParams()
		params.Items = nil

		result, err := h.coordinator.StartSession(context.Background(), params)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if h.sched.Scheduled("reminder:"+result.SessionKey) || h.sched.Scheduled("cutoff:"+result.SessionKey) {
			t.Fatal("expected no jobs for a session without pending authors")
		}
	})
}

func TestCoordinator_Acknowledge(t *testing.T) {
	t.Run("confirms a partial sign-off", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)

		result, err := h.coordinator.Acknowledge(context.Background(), key, "alice")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !result.Acknowledged || result.Completed || result.Frozen {
			t.Fatalf("expected a plain acknowledgement, got %+v", result)
		}
		if len(result.PendingAuthors) != 1 || result.PendingAuthors[0] != "bob" {
			t.Fatalf("expected bob to remain pending, got %v", result.PendingAuthors)
		}

		sent := h.sink.Sent()
		last := sent[len(sent)-1]
		if !strings.Contains(last.Text, "<@alice> signed off") {
			t.Fatalf("expected confirmation naming alice, got %q", last.Text)
		}
		if h.sched.Scheduled("reminder:"+key) != true {
			t.Fatal("expected reminder job to keep running while authors are pending")
		}
	})

	t.Run("final acknowledgement completes and dismantles the session", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)

		if _, err := h.coordinator.Acknowledge(context.Background(), key, "alice"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		result, err := h.coordinator.Acknowledge(context.Background(), key, "bob")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !result.Completed || len(result.PendingAuthors) != 0 {
			t.Fatalf("expected completion, got %+v", result)
		}

		if _, err := h.store.Get(key); !errors.Is(err, release.ErrNotFound) {
			t.Fatal("expected completed session to be removed")
		}
		cancelled := h.sched.Cancelled()
		if !containsAll(cancelled, "reminder:"+key, "cutoff:"+key) {
			t.Fatalf("expected both jobs cancelled, got %v", cancelled)
		}

		sent := h.sink.Sent()
		last := sent[len(sent)-1]
		if !strings.Contains(last.Text, "signed off early") {
			t.Fatalf("expected early-completion notice, got %q", last.Text)
		}

		resolved := h.journal.resolved()
		if len(resolved) != 1 || resolved[0].outcome != OutcomeCompletedEarly {
			t.Fatalf("expected a completed_early journal entry, got %v", resolved)
		}
	})

	t.Run("emits the early-completion notice exactly once under a race", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)

		var wg sync.WaitGroup
		for _, author := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(author string) {
				defer wg.Done()
				_, _ = h.coordinator.Acknowledge(context.Background(), key, author)
			}(author)
		}
		wg.Wait()

		completions := 0
		for _, msg := range h.sink.Sent() {
			if strings.Contains(msg.Text, "signed off early") {
				completions++
			}
		}
		if completions != 1 {
			t.Fatalf("expected exactly one early-completion notice, got %d", completions)
		}
		if h.store.Len() != 0 {
			t.Fatal("expected completed session to be removed")
		}
	})

	t.Run("an actor without pending items triggers no message", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		before := len(h.sink.Sent())

		result, err := h.coordinator.Acknowledge(context.Background(), key, "mallory")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if result.Acknowledged || result.Completed {
			t.Fatalf("expected a no-op, got %+v", result)
		}
		if len(h.sink.Sent()) != before {
			t.Fatal("expected no message for a no-op acknowledgement")
		}
	})

	t.Run("acknowledgements after the cutoff are dropped", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		h.clock.Set(time.Date(2025, 6, 11, 17, 0, 0, 0, time.UTC))
		if !h.sched.Fire("cutoff:" + key) {
			t.Fatal("expected cutoff job to be registered")
		}
		before := len(h.sink.Sent())

		result, err := h.coordinator.Acknowledge(context.Background(), key, "alice")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !result.Frozen {
			t.Fatalf("expected frozen result, got %+v", result)
		}
		if len(h.sink.Sent()) != before {
			t.Fatal("expected no message for a dropped acknowledgement")
		}

		session, err := h.store.Get(key)
		if err != nil {
			t.Fatalf("expected frozen session to remain queryable, got %v", err)
		}
		if len(session.PendingAuthors()) != 2 {
			t.Fatalf("expected pending set unchanged, got %v", session.PendingAuthors())
		}
	})

	t.Run("unknown session yields ErrNotFound", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.coordinator.Acknowledge(context.Background(), "missing", "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCoordinator_Status(t *testing.T) {
	t.Run("reports signed and pending items", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		if _, err := h.coordinator.Acknowledge(context.Background(), key, "alice"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		report, err := h.coordinator.Status(context.Background(), key)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		for _, fragment := range []string{"*Completed:*", "*Pending:*", "✅ <@alice>", "❌ <@bob>", "remaining"} {
			if !strings.Contains(report, fragment) {
				t.Fatalf("expected report to contain %q, got:\n%s", fragment, report)
			}
		}
	})

	t.Run("unknown session yields ErrNotFound", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.coordinator.Status(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCoordinator_Abort(t *testing.T) {
	h := newHarness(t)
	key := mustStart(t, h)

	if err := h.coordinator.Abort(context.Background(), key); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if _, err := h.store.Get(key); !errors.Is(err, release.ErrNotFound) {
		t.Fatal("expected aborted session to be removed")
	}
	if !containsAll(h.sched.Cancelled(), "reminder:"+key, "cutoff:"+key) {
		t.Fatalf("expected both jobs cancelled, got %v", h.sched.Cancelled())
	}

	sent := h.sink.Sent()
	last := sent[len(sent)-1]
	if !strings.Contains(last.Text, "aborted") {
		t.Fatalf("expected abort notice, got %q", last.Text)
	}

	resolved := h.journal.resolved()
	if len(resolved) != 1 || resolved[0].outcome != OutcomeAborted {
		t.Fatalf("expected an aborted journal entry, got %v", resolved)
	}
	if !containsAll(resolved[0].pending, "alice", "bob") {
		t.Fatalf("expected pending authors recorded, got %v", resolved[0].pending)
	}

	if err := h.coordinator.Abort(context.Background(), key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second abort to yield ErrNotFound, got %v", err)
	}
}

func TestCoordinator_Reminders(t *testing.T) {
	t.Run("nags the pending authors", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		if _, err := h.coordinator.Acknowledge(context.Background(), key, "alice"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if !h.sched.Fire("reminder:" + key) {
			t.Fatal("expected reminder job to be registered")
		}

		sent := h.sink.Sent()
		last := sent[len(sent)-1]
		if !strings.Contains(last.Text, "<@bob>") {
			t.Fatalf("expected reminder to name bob, got %q", last.Text)
		}
		if strings.Contains(last.Text, "<@alice>") {
			t.Fatalf("expected reminder not to name alice, got %q", last.Text)
		}
	})

	t.Run("a failed delivery is retried once", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		before := len(h.sink.Sent())

		h.sink.FailNext(1)
		h.sched.Fire("reminder:" + key)

		sent := h.sink.Sent()
		if len(sent) != before+1 {
			t.Fatalf("expected the retry to deliver the reminder, got %d new messages", len(sent)-before)
		}
	})

	t.Run("a firing is dropped when the retry also fails", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		before := len(h.sink.Sent())

		h.sink.FailNext(2)
		h.sched.Fire("reminder:" + key)

		if len(h.sink.Sent()) != before {
			t.Fatal("expected no reminder after both attempts failed")
		}
		if !h.sched.Scheduled("reminder:" + key) {
			t.Fatal("expected the reminder cadence to survive a dropped firing")
		}
	})

	t.Run("self-cancels when the session is gone", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		h.store.Remove(key)

		h.coordinator.handleReminder(key)

		if !containsAll(h.sched.Cancelled(), "reminder:"+key) {
			t.Fatalf("expected reminder job to cancel itself, got %v", h.sched.Cancelled())
		}
	})
}

func TestCoordinator_Cutoff(t *testing.T) {
	t.Run("escalates the still-pending authors in item order", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		h.clock.Set(time.Date(2025, 6, 11, 17, 0, 0, 0, time.UTC))

		if !h.sched.Fire("cutoff:" + key) {
			t.Fatal("expected cutoff job to be registered")
		}

		sent := h.sink.Sent()
		last := sent[len(sent)-1]
		if !strings.Contains(last.Text, "Sign-off incomplete") {
			t.Fatalf("expected escalation notice, got %q", last.Text)
		}
		if strings.Index(last.Text, "<@alice>") > strings.Index(last.Text, "<@bob>") {
			t.Fatalf("expected stable author order, got %q", last.Text)
		}

		if !containsAll(h.sched.Cancelled(), "reminder:"+key) {
			t.Fatal("expected reminder cadence to be cancelled at cutoff")
		}

		session, err := h.store.Get(key)
		if err != nil {
			t.Fatalf("expected session to remain queryable, got %v", err)
		}
		if !session.Resolved() {
			t.Fatal("expected session to be frozen")
		}

		resolved := h.journal.resolved()
		if len(resolved) != 1 || resolved[0].outcome != OutcomeCutoffEscalated {
			t.Fatalf("expected a cutoff_escalated journal entry, got %v", resolved)
		}
		if !containsAll(resolved[0].pending, "alice", "bob") {
			t.Fatalf("expected pending authors recorded, got %v", resolved[0].pending)
		}
	})

	t.Run("announces readiness when nothing is pending", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		_ = h.store.Update(key, func(s *release.Session) bool {
			for i := range s.Items {
				s.Items[i].Acknowledged = true
			}
			return false
		})

		h.coordinator.handleCutoff(key)

		sent := h.sink.Sent()
		last := sent[len(sent)-1]
		if !strings.Contains(last.Text, "Ready for review") {
			t.Fatalf("expected readiness notice, got %q", last.Text)
		}
		resolved := h.journal.resolved()
		if len(resolved) != 1 || resolved[0].outcome != OutcomeCutoffComplete {
			t.Fatalf("expected a cutoff_complete journal entry, got %v", resolved)
		}
	})

	t.Run("retries delivery up to the configured bound", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		before := len(h.sink.Sent())

		h.sink.FailNext(2)
		h.sched.Fire("cutoff:" + key)

		if len(h.sink.Sent()) != before+1 {
			t.Fatal("expected the third attempt to deliver the cutoff notice")
		}
	})

	t.Run("gives up after the final attempt", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		before := len(h.sink.Sent())

		h.sink.FailNext(3)
		h.sched.Fire("cutoff:" + key)

		if len(h.sink.Sent()) != before {
			t.Fatal("expected no delivery after exhausting attempts")
		}

		session, err := h.store.Get(key)
		if err != nil || !session.Resolved() {
			t.Fatal("expected session to be frozen even when delivery failed")
		}
	})

	t.Run("a second firing is a no-op", func(t *testing.T) {
		h := newHarness(t)
		key := mustStart(t, h)
		h.coordinator.handleCutoff(key)
		sentAfterFirst := len(h.sink.Sent())
		resolvedAfterFirst := len(h.journal.resolved())

		h.coordinator.handleCutoff(key)

		if len(h.sink.Sent()) != sentAfterFirst {
			t.Fatal("expected no additional message from a duplicate cutoff")
		}
		if len(h.journal.resolved()) != resolvedAfterFirst {
			t.Fatal("expected no additional journal entry from a duplicate cutoff")
		}
	})
}

func TestConfig_withDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ReminderInterval != 2*time.Hour {
		t.Fatalf("expected 2h reminder interval, got %v", cfg.ReminderInterval)
	}
	if cfg.ReminderRetryDelay != 30*time.Second {
		t.Fatalf("expected 30s reminder retry delay, got %v", cfg.ReminderRetryDelay)
	}
	if cfg.CutoffDeliveryAttempts != 3 {
		t.Fatalf("expected 3 cutoff attempts, got %d", cfg.CutoffDeliveryAttempts)
	}
	if cfg.CutoffRetryBackoff != 30*time.Second {
		t.Fatalf("expected 30s cutoff backoff, got %v", cfg.CutoffRetryBackoff)
	}

	custom := Config{ReminderInterval: time.Minute, CutoffDeliveryAttempts: 5}.withDefaults()
	if custom.ReminderInterval != time.Minute || custom.CutoffDeliveryAttempts != 5 {
		t.Fatalf("expected explicit values to survive, got %+v", custom)
	}
}

func containsAll(haystack []string, needles ...string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, s := range haystack {
		set[s] = struct{}{}
	}
	for _, needle := range needles {
		if _, ok := set[needle]; !ok {
			return false
		}
	}
	return true
}

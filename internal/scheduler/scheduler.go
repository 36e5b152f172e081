// Package scheduler provides the timer facility behind reminder and cutoff
// jobs. Jobs run on their own goroutines, never on the scheduling caller's,
// and a panicking job is contained at the execution boundary so sibling jobs
// keep firing.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler fires callables at future times or on fixed intervals and supports
// cancellation by job id. Cancelling an unknown or already-fired job is not an
// error; cancelling a job that has begun executing lets the in-flight run
// complete and only prevents future firings.
type Scheduler interface {
	ScheduleAt(at time.Time, jobID string, fn func())
	ScheduleEvery(interval time.Duration, jobID string, fn func())
	Cancel(jobID string)
}

// TimerScheduler implements Scheduler on top of runtime timers.
type TimerScheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	now     func() time.Time
	logger  *slog.Logger
}

type job struct {
	timer *time.Timer
	stop  chan struct{}
}

// NewTimerScheduler constructs a scheduler. The now function and logger fall
// back to time.Now and slog.Default when nil.
func NewTimerScheduler(now func() time.Time, logger *slog.Logger) *TimerScheduler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		jobs:   make(map[string]*job),
		now:    now,
		logger: logger,
	}
}

// ScheduleAt fires fn once at the given time. A time in the past fires
// immediately. Scheduling an id that already exists replaces the earlier job.
func (s *TimerScheduler) ScheduleAt(at time.Time, jobID string, fn func()) {
	if jobID == "" || fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked(jobID)

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	entry := &job{}
	entry.timer = time.AfterFunc(delay, func() {
		s.forget(jobID, entry)
		s.run(jobID, fn)
	})
	s.jobs[jobID] = entry
}

// ScheduleEvery fires fn repeatedly at the given interval until cancelled.
// The first firing happens one interval after scheduling.
func (s *TimerScheduler) ScheduleEvery(interval time.Duration, jobID string, fn func()) {
	if jobID == "" || fn == nil || interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked(jobID)

	entry := &job{stop: make(chan struct{})}
	s.jobs[jobID] = entry

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-entry.stop:
				return
			case <-ticker.C:
				s.run(jobID, fn)
			}
		}
	}()
}

// Cancel removes the job with the given id. Idempotent.
func (s *TimerScheduler) Cancel(jobID string) {
	s.mu.Lock()
	s.cancelLocked(jobID)
	s.mu.Unlock()
}

// Stop cancels every outstanding job and rejects further scheduling. In-flight
// executions are left to complete.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id := range s.jobs {
		s.cancelLocked(id)
	}
}

func (s *TimerScheduler) cancelLocked(jobID string) {
	entry, ok := s.jobs[jobID]
	if !ok {
		return
	}
	delete(s.jobs, jobID)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.stop != nil {
		close(entry.stop)
	}
}

// forget drops a one-shot entry after it fires, unless the slot was already
// replaced by a newer job under the same id.
func (s *TimerScheduler) forget(jobID string, entry *job) {
	s.mu.Lock()
	if current, ok := s.jobs[jobID]; ok && current == entry {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()
}

func (s *TimerScheduler) run(jobID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job_id", jobID, "panic", r)
		}
	}()
	fn()
}

package testfixtures

import (
	"sync"
	"time"

	"github.com/example/release-signoff/internal/scheduler"
)

// ScheduledJob is one job registered with a FakeScheduler.
type ScheduledJob struct {
	ID       string
	At       time.Time
	Interval time.Duration
	fn       func()
}

// FakeScheduler implements scheduler.Scheduler under test control: jobs never
// fire on their own, tests fire them explicitly with Fire. Cancelled ids are
// remembered so tests can assert cancellation happened.
type FakeScheduler struct {
	mu        sync.Mutex
	jobs      map[string]ScheduledJob
	cancelled []string
}

var _ scheduler.Scheduler = (*FakeScheduler)(nil)

// NewFakeScheduler returns an empty fake.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{jobs: make(map[string]ScheduledJob)}
}

// ScheduleAt registers a one-shot job.
func (s *FakeScheduler) ScheduleAt(at time.Time, jobID string, fn func()) {
	s.mu.Lock()
	s.jobs[jobID] = ScheduledJob{ID: jobID, At: at, fn: fn}
	s.mu.Unlock()
}

// ScheduleEvery registers a recurring job.
func (s *FakeScheduler) ScheduleEvery(interval time.Duration, jobID string, fn func()) {
	s.mu.Lock()
	s.jobs[jobID] = ScheduledJob{ID: jobID, Interval: interval, fn: fn}
	s.mu.Unlock()
}

// Cancel removes the job and records the cancellation.
func (s *FakeScheduler) Cancel(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.cancelled = append(s.cancelled, jobID)
	s.mu.Unlock()
}

// Fire runs the job synchronously and reports whether it existed. One-shot
// jobs are consumed; recurring jobs stay registered, as in the real scheduler.
func (s *FakeScheduler) Fire(jobID string) bool {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok && job.Interval == 0 {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	job.fn()
	return true
}

// Scheduled reports whether a job with the id is currently registered.
func (s *FakeScheduler) Scheduled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// Job returns the registered job for inspection.
func (s *FakeScheduler) Job(jobID string) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// Cancelled returns a copy of the cancelled job ids in order.
func (s *FakeScheduler) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cancelled))
	copy(out, s.cancelled)
	return out
}

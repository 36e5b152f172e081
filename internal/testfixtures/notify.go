package testfixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/release-signoff/internal/notify"
)

// SentMessage is one delivery recorded by a RecorderSink.
type SentMessage struct {
	Destination string
	Text        string
}

// RecorderSink implements notify.Sink for tests. It records every delivery,
// hands out sequential delivery ids, and can be scripted to fail the next N
// sends. Safe for concurrent use.
type RecorderSink struct {
	mu           sync.Mutex
	sent         []SentMessage
	failNext     int
	displayNames map[string]string
	counter      int
}

var _ notify.Sink = (*RecorderSink)(nil)

// NewRecorderSink returns an empty recorder.
func NewRecorderSink() *RecorderSink {
	return &RecorderSink{displayNames: make(map[string]string)}
}

// Send records the message or fails if a failure was scripted.
func (s *RecorderSink) Send(_ context.Context, destination, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return "", fmt.Errorf("%w: scripted failure", notify.ErrDelivery)
	}
	s.counter++
	s.sent = append(s.sent, SentMessage{Destination: destination, Text: text})
	return fmt.Sprintf("msg-%d", s.counter), nil
}

// LookupDisplayName resolves names registered via SetDisplayName.
func (s *RecorderSink) LookupDisplayName(_ context.Context, actorID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.displayNames[actorID]
	if !ok {
		return "", fmt.Errorf("no display name for %s", actorID)
	}
	return name, nil
}

// SetDisplayName registers a display name for lookups.
func (s *RecorderSink) SetDisplayName(actorID, name string) {
	s.mu.Lock()
	s.displayNames[actorID] = name
	s.mu.Unlock()
}

// FailNext makes the next n Send calls fail.
func (s *RecorderSink) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// Sent returns a copy of the recorded deliveries.
func (s *RecorderSink) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

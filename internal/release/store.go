package release

import (
	"sort"
	"sync"
)

// Store holds all live sign-off sessions keyed by session key. One lock guards
// the map and every mutation of the sessions it contains; hold times stay short
// because callers never perform I/O inside Update closures.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put stores the session under its key, replacing any previous entry.
func (s *Store) Put(session *Session) {
	if session == nil || session.SessionKey == "" {
		return
	}
	s.mu.Lock()
	s.sessions[session.SessionKey] = session
	s.mu.Unlock()
}

// Get returns a deep-copy snapshot of the session for display purposes.
func (s *Store) Get(sessionKey string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// Remove deletes the session and reports whether it was present.
func (s *Store) Remove(sessionKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionKey]; !ok {
		return false
	}
	delete(s.sessions, sessionKey)
	return true
}

// Update runs fn on the live session inside the store lock. When fn returns
// true the session is removed in the same critical section, so decisions such
// as "the last acknowledgement just completed this session" are atomic with
// the removal they trigger. Returns ErrNotFound for unknown keys.
func (s *Store) Update(sessionKey string, fn func(*Session) (remove bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey]
	if !ok {
		return ErrNotFound
	}
	if fn(session) {
		delete(s.sessions, sessionKey)
	}
	return nil
}

// List returns deep-copy snapshots of all sessions ordered by creation time,
// with the session key as a tiebreaker.
func (s *Store) List() []*Session {
	s.mu.Lock()
	snapshots := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		snapshots = append(snapshots, session.Clone())
	}
	s.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].SessionKey < snapshots[j].SessionKey
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	return snapshots
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

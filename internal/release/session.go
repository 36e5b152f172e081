package release

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for the requested key.
	ErrNotFound = errors.New("release: session not found")
)

// ChangeItem is one unit of work requiring its author's sign-off before the
// release proceeds. Acknowledged is the only field mutated after construction
// and only ever transitions false to true.
type ChangeItem struct {
	ID           int
	Title        string
	Author       string
	Acknowledged bool
}

// Session is the tracked state of one release's sign-off process. It is keyed
// by the delivery identifier of its announcement message and must only be
// mutated through the owning Store.
type Session struct {
	ServiceName       string
	Version           string
	Day1Date          string
	Day2Date          string
	CutoffTime        time.Time
	CoordinatorHandle string
	Destination       string
	SessionKey        string
	Items             []ChangeItem
	CreatedAt         time.Time
	ReminderJobIDs    []string
	CutoffJobID       string
	// ResolvedAt is set once the cutoff fires. A resolved session is frozen:
	// it stays queryable but accepts no further acknowledgements.
	ResolvedAt *time.Time
}

// PendingAuthors returns the distinct authors that still own at least one
// unacknowledged item, ordered by first appearance in the item list.
func (s *Session) PendingAuthors() []string {
	return s.distinctAuthors(func(item ChangeItem) bool { return !item.Acknowledged })
}

// AcknowledgedAuthors returns the distinct authors all of whose items are
// acknowledged, ordered by first appearance in the item list.
func (s *Session) AcknowledgedAuthors() []string {
	pending := make(map[string]struct{})
	for _, item := range s.Items {
		if !item.Acknowledged {
			pending[item.Author] = struct{}{}
		}
	}
	return s.distinctAuthors(func(item ChangeItem) bool {
		_, stillPending := pending[item.Author]
		return !stillPending
	})
}

// Complete reports whether every item in the session is acknowledged.
// Completeness is monotonic: items never revert to unacknowledged.
func (s *Session) Complete() bool {
	for _, item := range s.Items {
		if !item.Acknowledged {
			return false
		}
	}
	return true
}

// Resolved reports whether the cutoff has fired for this session.
func (s *Session) Resolved() bool {
	return s.ResolvedAt != nil
}

// AcknowledgeAuthor marks every unacknowledged item owned by the author as
// acknowledged and reports whether anything changed.
func (s *Session) AcknowledgeAuthor(author string) bool {
	changed := false
	for i := range s.Items {
		if s.Items[i].Author == author && !s.Items[i].Acknowledged {
			s.Items[i].Acknowledged = true
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy safe to use outside the store lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Items = make([]ChangeItem, len(s.Items))
	copy(clone.Items, s.Items)
	clone.ReminderJobIDs = make([]string, len(s.ReminderJobIDs))
	copy(clone.ReminderJobIDs, s.ReminderJobIDs)
	if s.ResolvedAt != nil {
		resolvedAt := *s.ResolvedAt
		clone.ResolvedAt = &resolvedAt
	}
	return &clone
}

func (s *Session) distinctAuthors(include func(ChangeItem) bool) []string {
	seen := make(map[string]struct{}, len(s.Items))
	authors := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		if !include(item) {
			continue
		}
		if _, ok := seen[item.Author]; ok {
			continue
		}
		seen[item.Author] = struct{}{}
		authors = append(authors, item.Author)
	}
	return authors
}

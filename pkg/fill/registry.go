package fill

import (
	"fmt"
	"sync"
)

// DefaultKeepFinished is how many finished sessions a registry remembers.
const DefaultKeepFinished = 100

// SessionConflictError is returned when a page already has an active session.
type SessionConflictError struct {
	PageID    string
	SessionID string
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("page %s already has an active fill session (%s)", e.PageID, e.SessionID)
}

// Registry tracks sessions: at most one active session per page, plus a
// bounded list of finished ones for lookup.
type Registry struct {
	mu           sync.Mutex
	active       map[string]*Session
	byID         map[string]*Session
	order        []string
	keepFinished int
}

// NewRegistry creates a registry keeping up to keepFinished finished sessions.
func NewRegistry(keepFinished int) *Registry {
	if keepFinished <= 0 {
		keepFinished = DefaultKeepFinished
	}
	return &Registry{
		active:       make(map[string]*Session),
		byID:         make(map[string]*Session),
		keepFinished: keepFinished,
	}
}

// acquire registers s as the active session for its page.
func (r *Registry) acquire(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[s.PageID()]; ok {
		return &SessionConflictError{PageID: s.PageID(), SessionID: current.ID()}
	}
	r.active[s.PageID()] = s
	r.byID[s.ID()] = s
	r.order = append(r.order, s.ID())
	r.prune()
	return nil
}

// release frees the page held by s.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[s.PageID()] == s {
		delete(r.active, s.PageID())
	}
	r.prune()
}

// prune drops the oldest finished sessions beyond the limit. Active
// sessions are never dropped.
func (r *Registry) prune() {
	finished := len(r.order) - len(r.active)
	if finished <= r.keepFinished {
		return
	}

	kept := r.order[:0]
	for _, id := range r.order {
		s := r.byID[id]
		if finished > r.keepFinished && r.active[s.PageID()] != s {
			delete(r.byID, id)
			finished--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Active returns the active session for a page.
func (r *Registry) Active(pageID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[pageID]
	return s, ok
}

// List returns snapshots of all known sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.byID[id])
	}
	r.mu.Unlock()

	out := make([]Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.Snapshot()
	}
	return out
}

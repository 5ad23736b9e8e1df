package fill

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/mapping"
	"github.com/entrhq/clippypour/pkg/page"
)

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID      string `json:"id"`
	FormURL string `json:"form_url"`
	PageID  string `json:"page_id"`
	Mode    Mode   `json:"mode"`
	Verify  bool   `json:"verify"`
	Status  Status `json:"status"`

	Form     *form.FormDescriptor `json:"form,omitempty"`
	Mapping  *mapping.Result      `json:"mapping,omitempty"`
	Attempts []Attempt            `json:"attempts"`
	Failure  *Failure             `json:"failure,omitempty"`

	// Canceled is set when the caller's context ended the session.
	Canceled bool `json:"canceled"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Completed returns the number of fields written successfully.
func (s Snapshot) Completed() int {
	n := 0
	for _, a := range s.Attempts {
		if a.Outcome == OutcomeSucceeded {
			n++
		}
	}
	return n
}

// Failed returns the attempts that failed.
func (s Snapshot) Failed() []Attempt {
	var out []Attempt
	for _, a := range s.Attempts {
		if a.Outcome == OutcomeFailed {
			out = append(out, a)
		}
	}
	return out
}

// Selectors returns the selectors of the session's form in field order.
func (s Snapshot) Selectors() []string {
	if s.Form == nil {
		return nil
	}
	return s.Form.Selectors()
}

// Session is the live, mutex-guarded state of one fill operation. Once its
// status is terminal it no longer changes.
type Session struct {
	mu     sync.RWMutex
	snap   Snapshot
	handle page.Handle
	req    Request
	cancel func()

	// cancelRequested records a Cancel that arrived before Run started.
	cancelRequested bool
}

func newSession(id string, h page.Handle, req Request, now time.Time) *Session {
	return &Session{
		handle: h,
		req:    req,
		snap: Snapshot{
			ID:        id,
			FormURL:   req.FormURL,
			PageID:    h.ID(),
			Mode:      req.Mode,
			Verify:    req.Verify,
			Status:    StatusIdle,
			StartedAt: now,
		},
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.snap.ID
}

// PageID returns the id of the targeted page.
func (s *Session) PageID() string {
	return s.snap.PageID
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Status
}

// Snapshot returns a copy of the session state safe to hand to other
// goroutines.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.Attempts = append([]Attempt(nil), s.snap.Attempts...)
	if s.snap.Failure != nil {
		f := *s.snap.Failure
		out.Failure = &f
	}
	return out
}

// Cancel asks a running session to stop at its next suspension point.
// It reports false when the session is already terminal.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.snap.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	cancel := s.cancel
	if cancel == nil {
		s.cancelRequested = true
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (s *Session) setCancel(cancel func()) {
	s.mu.Lock()
	s.cancel = cancel
	early := s.cancelRequested
	s.mu.Unlock()

	if early {
		cancel()
	}
}

// transition moves the session to status to, returning the previous status.
func (s *Session) transition(to Status, now time.Time) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.snap.Status
	if !canTransition(from, to) {
		return from, fmt.Errorf("session %s: illegal transition %s -> %s", s.snap.ID, from, to)
	}
	s.snap.Status = to
	if to.Terminal() {
		s.snap.EndedAt = now
	}
	return from, nil
}

// update applies fn to the snapshot unless the session is terminal.
func (s *Session) update(fn func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Status.Terminal() {
		return fmt.Errorf("session %s is %s and can no longer change", s.snap.ID, s.snap.Status)
	}
	fn(&s.snap)
	return nil
}

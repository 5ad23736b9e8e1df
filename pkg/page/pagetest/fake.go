// Package pagetest provides in-memory implementations of the page
// capabilities for tests.
package pagetest

import (
	"context"
	"sync"

	"github.com/entrhq/clippypour/pkg/page"
)

// Handle is a fixed page handle.
type Handle struct {
	PageID    string
	PageURL   string
	PageTitle string
}

func (h Handle) ID() string    { return h.PageID }
func (h Handle) URL() string   { return h.PageURL }
func (h Handle) Title() string { return h.PageTitle }

// NewHandle returns a handle with the given id and url.
func NewHandle(id, url string) Handle {
	return Handle{PageID: id, PageURL: url, PageTitle: "Test page"}
}

// Prober returns a fixed candidate list.
type Prober struct {
	Candidates []page.Candidate
	Err        error

	mu    sync.Mutex
	calls int
}

func (p *Prober) Probe(ctx context.Context, h page.Handle) ([]page.Candidate, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]page.Candidate, len(p.Candidates))
	copy(out, p.Candidates)
	return out, nil
}

// Calls returns how many times Probe was invoked.
func (p *Prober) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Writer records writes and fails on demand. It also implements page.Reader
// by reading back what was written.
type Writer struct {
	// Failures maps a selector to the number of times its write fails before
	// succeeding. A negative count fails forever.
	Failures map[string]int

	// Reason is the failure reason reported, not-interactable by default.
	Reason page.WriteReason

	// Readback overrides the value read back for a selector.
	Readback map[string]string

	// OnWrite runs before every write attempt, outside the lock.
	OnWrite func(selector, value string)

	mu     sync.Mutex
	values map[string]string
	calls  []string
}

func (w *Writer) Write(ctx context.Context, h page.Handle, selector, value string) error {
	if w.OnWrite != nil {
		w.OnWrite(selector, value)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, selector)
	if n, ok := w.Failures[selector]; ok && n != 0 {
		if n > 0 {
			w.Failures[selector] = n - 1
		}
		reason := w.Reason
		if reason == "" {
			reason = page.ReasonNotInteractable
		}
		return page.NewWriteError(selector, reason, nil)
	}

	if w.values == nil {
		w.values = make(map[string]string)
	}
	w.values[selector] = value
	return nil
}

func (w *Writer) ReadBack(ctx context.Context, h page.Handle, selector, want string) (page.Readback, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	actual, ok := w.Readback[selector]
	if !ok {
		actual = w.values[selector]
	}
	return page.Readback{Matches: actual == want, Actual: actual}, nil
}

// Calls returns the selectors of every write attempt in order.
func (w *Writer) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.calls))
	copy(out, w.calls)
	return out
}

// Value returns the last value written to selector.
func (w *Writer) Value(selector string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.values[selector]
}

// Input builds an input candidate inside container.
func Input(container, selector, typ string, attrs map[string]string) page.Candidate {
	a := map[string]string{}
	if typ != "" {
		a["type"] = typ
	}
	for k, v := range attrs {
		a[k] = v
	}
	return page.Candidate{
		Tag:        "input",
		Attributes: a,
		Selector:   selector,
		Visible:    true,
		Container:  container,
	}
}

// ContactForm returns the three candidates of a name/email/address form.
func ContactForm() []page.Candidate {
	return []page.Candidate{
		Input("#contact", "#name", "text", map[string]string{"name": "name", "placeholder": "Full name"}),
		Input("#contact", "#email", "email", map[string]string{"name": "email"}),
		Input("#contact", "#address", "text", map[string]string{"name": "address"}),
	}
}

// Package page defines the capabilities the fill engine consumes from a live
// page: probing for candidate fields, writing values, and reading them back.
//
// The engine never talks to a browser directly. Drivers under pkg/browser
// implement these interfaces on top of Playwright, Rod, or a static HTML
// document, and the analyzer and orchestrator only see the contracts below.
package page

import "context"

// Handle identifies one loaded page. Two handles with the same ID refer to
// the same page; the orchestrator uses the ID to serialize sessions.
type Handle interface {
	// ID is a process-unique identifier for the page.
	ID() string

	// URL is the page URL at the time the handle was last refreshed.
	URL() string

	// Title is the document title at the time the handle was last refreshed.
	Title() string
}

// Candidate is one raw fillable element reported by a Prober.
type Candidate struct {
	// Tag is the lowercase element name (input, textarea, select).
	Tag string `json:"tag"`

	// Attributes holds the element's attributes as written in the DOM.
	Attributes map[string]string `json:"attributes"`

	// Selector is a CSS selector computed by the prober, unique within the
	// page at probe time.
	Selector string `json:"selector"`

	// Visible is false when the element has no rendered box (display:none,
	// visibility:hidden, zero size).
	Visible bool `json:"visible"`

	// Container is the selector of the enclosing form-like container. Empty
	// means the element is not inside anything the prober treats as a form.
	Container string `json:"container"`

	// LabelText is the text of an explicitly associated <label>, either via
	// for=id or by wrapping the element.
	LabelText string `json:"labelText"`

	// Options lists the option labels of a <select> element.
	Options []string `json:"options,omitempty"`
}

// Attr returns the attribute value, or "" when absent.
func (c Candidate) Attr(name string) string {
	if c.Attributes == nil {
		return ""
	}
	return c.Attributes[name]
}

// HasAttr reports whether the attribute is present, regardless of value.
func (c Candidate) HasAttr(name string) bool {
	if c.Attributes == nil {
		return false
	}
	_, ok := c.Attributes[name]
	return ok
}

// Prober lists candidate elements on a loaded page.
type Prober interface {
	// Probe returns candidates in document order. It fails with *ProbeError
	// when the handle is invalid or the page is closed.
	Probe(ctx context.Context, h Handle) ([]Candidate, error)
}

// Writer performs the actual DOM write for one field.
type Writer interface {
	// Write sets the value of the element matched by selector. Failures are
	// reported as *WriteError.
	Write(ctx context.Context, h Handle, selector, value string) error
}

// Readback is the result of comparing a field's current value with the
// value that was written.
type Readback struct {
	Matches bool
	Actual  string
}

// Reader reads a field back after filling. It knows the element semantics
// (checkbox state, select option labels) so callers only compare intent.
type Reader interface {
	ReadBack(ctx context.Context, h Handle, selector, want string) (Readback, error)
}

// Submitter submits a filled form. Not every driver can; callers check for
// the capability with a type assertion.
type Submitter interface {
	// Submit submits the form matched by selector, or the form enclosing
	// the element it matches. It returns ErrNoForm when there is none.
	Submit(ctx context.Context, h Handle, selector string) error
}

// Driver is a complete page backend: it opens pages and provides every
// capability the engine consumes.
type Driver interface {
	Prober
	Writer
	Reader

	// Open navigates a new page to url and waits for it to load.
	Open(ctx context.Context, url string) (Handle, error)

	// Close releases one page.
	Close(h Handle) error

	// Shutdown releases every page and the underlying browser.
	Shutdown() error
}

package page

import (
	"errors"
	"fmt"
)

// WriteReason classifies a failed field write.
type WriteReason string

const (
	ReasonSelectorNotFound WriteReason = "selector-not-found"
	ReasonNotInteractable  WriteReason = "not-interactable"
	ReasonTimeout          WriteReason = "timeout"
)

// WriteError is returned by Writer implementations when a field cannot be set.
type WriteError struct {
	Selector string
	Reason   WriteReason
	Err      error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write %s: %s: %v", e.Selector, e.Reason, e.Err)
	}
	return fmt.Sprintf("write %s: %s", e.Selector, e.Reason)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewWriteError builds a WriteError for selector.
func NewWriteError(selector string, reason WriteReason, err error) *WriteError {
	return &WriteError{Selector: selector, Reason: reason, Err: err}
}

// ReasonOf extracts the write reason from err. Errors that are not a
// WriteError are classified as not-interactable, the most conservative
// reason for an unexplained driver failure.
func ReasonOf(err error) WriteReason {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Reason
	}
	return ReasonNotInteractable
}

// ProbeError is returned by a Prober when the page handle is unusable.
type ProbeError struct {
	PageID string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe page %s: %v", e.PageID, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ErrPageClosed is wrapped by drivers when a handle refers to a page that
// was closed or never opened by them.
var ErrPageClosed = errors.New("page closed")

// ErrNoForm is returned by Submit when the selector is not inside a <form>.
var ErrNoForm = errors.New("no enclosing form")

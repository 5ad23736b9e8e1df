package page

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteError_Message(t *testing.T) {
	err := NewWriteError("#email", ReasonSelectorNotFound, nil)
	assert.Equal(t, "write #email: selector-not-found", err.Error())

	wrapped := NewWriteError("#email", ReasonTimeout, context.DeadlineExceeded)
	assert.Contains(t, wrapped.Error(), "timeout")
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want WriteReason
	}{
		{"direct", NewWriteError("#a", ReasonTimeout, nil), ReasonTimeout},
		{"wrapped", fmt.Errorf("driver: %w", NewWriteError("#a", ReasonSelectorNotFound, nil)), ReasonSelectorNotFound},
		{"foreign", errors.New("boom"), ReasonNotInteractable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}

func TestProbeError_Unwrap(t *testing.T) {
	err := &ProbeError{PageID: "p1", Err: ErrPageClosed}
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.Contains(t, err.Error(), "p1")
}

func TestCandidate_Attr(t *testing.T) {
	c := Candidate{Attributes: map[string]string{"required": "", "name": "email"}}
	assert.Equal(t, "email", c.Attr("name"))
	assert.True(t, c.HasAttr("required"))
	assert.False(t, c.HasAttr("disabled"))

	var empty Candidate
	assert.Equal(t, "", empty.Attr("name"))
	assert.False(t, empty.HasAttr("name"))
}

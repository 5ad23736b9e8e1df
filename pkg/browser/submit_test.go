package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/clippypour/pkg/page"
)

func TestSubmitResult(t *testing.T) {
	assert.NoError(t, SubmitResult("#signup", "clicked"))
	assert.NoError(t, SubmitResult("#signup", "requested"))
	assert.Equal(t, page.ReasonSelectorNotFound, page.ReasonOf(SubmitResult("#gone", "not-found")))
	assert.ErrorIs(t, SubmitResult("#email", "no-form"), page.ErrNoForm)
	assert.Error(t, SubmitResult("#signup", ""))
}

func TestSubmitArgs(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"selector": "#signup"}, SubmitArgs("#signup"))
}

package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/mapping"
)

func partial() fill.Snapshot {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return fill.Snapshot{
		ID:      "s1",
		FormURL: "https://example.com/contact",
		Mode:    fill.ModeLenient,
		Status:  fill.StatusPartiallyFilled,
		Attempts: []fill.Attempt{
			{Selector: "#name", Label: "Name", Value: "John", Outcome: fill.OutcomeSucceeded},
			{Selector: "#email", Label: "Email | work", Value: "john@example.com", Outcome: fill.OutcomeFailed, Reason: "timeout", RetryCount: 2},
			{Selector: "#phone", Label: "Phone", Outcome: fill.OutcomeSkipped, Reason: fill.ReasonUnmatched},
		},
		Mapping: &mapping.Result{
			UnmatchedFields: []form.FieldDescriptor{{Selector: "#phone", Label: "Phone"}},
		},
		Failure:   &fill.Failure{Kind: fill.FailureWrite, Message: "1 field(s) failed"},
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(partial())

	assert.Contains(t, md, "**Status:** PartiallyFilled")
	assert.Contains(t, md, "**Duration:** 1.5s")
	assert.Contains(t, md, "❌ **write:** 1 field(s) failed")
	assert.Contains(t, md, "| 2 | Email \\| work | `#email` | ❌ failed(timeout) | 2 |")
	assert.Contains(t, md, "- field Phone (`#phone`)")
	assert.Contains(t, md, "- **Completed:** 1")
	assert.NotContains(t, md, "john@example.com")
}

func TestMarkdown_Success(t *testing.T) {
	snap := partial()
	snap.Status = fill.StatusDone
	snap.Failure = nil
	snap.Mapping = &mapping.Result{}

	md := Markdown(snap)
	assert.Contains(t, md, "✅ **Success**")
	assert.NotContains(t, md, "## Unmatched")
}

func TestArtifactWriter_WriteAll(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)
	snap := partial()

	require.NoError(t, w.WriteAll(snap))
	assert.Equal(t, filepath.Join(dir, "s1"), w.Dir(snap))

	data, err := os.ReadFile(filepath.Join(dir, "s1", "session.json"))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "PartiallyFilled", decoded["status"])
	assert.Len(t, decoded["attempts"], 3)

	md, err := os.ReadFile(filepath.Join(dir, "s1", "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# ClippyPour Fill Summary")
}

func TestSummary(t *testing.T) {
	out := Summary(partial())
	assert.Contains(t, out, "PartiallyFilled")
	assert.Contains(t, out, "failed(timeout)")
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "1 field(s) failed")
	assert.Contains(t, out, "1/3")
}

func TestForms(t *testing.T) {
	out := Forms([]form.FormDescriptor{{
		Selector: "#contact",
		Category: form.CategoryContact,
		Purpose:  "Contact form",
		Fields: []form.FieldDescriptor{
			{Selector: "#name", Label: "Name", Kind: form.KindText, Visible: true, Required: true},
		},
	}})
	assert.Contains(t, out, "#contact")
	assert.Contains(t, out, "Contact form")
	assert.Contains(t, out, "#name *")

	assert.Contains(t, Forms(nil), "no forms found")
}

func TestHighlightJSON(t *testing.T) {
	var plain bytes.Buffer
	require.NoError(t, HighlightJSON(&plain, map[string]int{"completed": 2}, false))
	assert.Equal(t, "{\n  \"completed\": 2\n}\n", plain.String())

	var colored bytes.Buffer
	require.NoError(t, HighlightJSON(&colored, map[string]int{"completed": 2}, true))
	assert.Contains(t, colored.String(), "completed")
	assert.Contains(t, colored.String(), "\x1b[")
}

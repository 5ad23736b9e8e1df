// Package report renders finished fill sessions: JSON and markdown artifacts
// on disk, and a styled summary for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/clippypour/pkg/fill"
)

// ArtifactWriter writes session artifacts into a directory.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a writer for outputDir.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{outputDir: outputDir}
}

// Dir returns the directory artifacts for snap are written to.
func (w *ArtifactWriter) Dir(snap fill.Snapshot) string {
	return filepath.Join(w.outputDir, snap.ID)
}

// WriteAll writes session.json and summary.md under Dir(snap).
func (w *ArtifactWriter) WriteAll(snap fill.Snapshot) error {
	dir := w.Dir(snap)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteSessionJSON(snap); err != nil {
		return err
	}
	return w.WriteSummaryMarkdown(snap)
}

// WriteSessionJSON writes the full snapshot as JSON.
func (w *ArtifactWriter) WriteSessionJSON(snap fill.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.Dir(snap), "session.json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write session JSON: %w", err)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable summary.
func (w *ArtifactWriter) WriteSummaryMarkdown(snap fill.Snapshot) error {
	if err := os.WriteFile(filepath.Join(w.Dir(snap), "summary.md"), []byte(Markdown(snap)), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

// Markdown renders snap as a markdown document. Field values are left out.
func Markdown(snap fill.Snapshot) string {
	var md strings.Builder

	md.WriteString("# ClippyPour Fill Summary\n\n")
	md.WriteString(fmt.Sprintf("**Session:** %s\n\n", snap.ID))
	md.WriteString(fmt.Sprintf("**Form:** %s\n\n", snap.FormURL))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", snap.Status))
	md.WriteString(fmt.Sprintf("**Mode:** %s\n\n", snap.Mode))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", snap.StartedAt.Format(time.RFC3339)))
	if !snap.EndedAt.IsZero() {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", snap.EndedAt.Sub(snap.StartedAt).Round(time.Millisecond)))
	}

	md.WriteString("## Result\n\n")
	if snap.Failure != nil {
		md.WriteString(fmt.Sprintf("❌ **%s:** %s\n\n", snap.Failure.Kind, snap.Failure.Message))
	} else {
		md.WriteString("✅ **Success**\n\n")
	}

	if len(snap.Attempts) > 0 {
		md.WriteString("## Fields\n\n")
		md.WriteString("| # | Field | Selector | Outcome | Retries |\n")
		md.WriteString("|---|---|---|---|---|\n")
		for i, a := range snap.Attempts {
			md.WriteString(fmt.Sprintf("| %d | %s | `%s` | %s %s | %d |\n",
				i+1, escapeCell(a.Label), a.Selector, outcomeIcon(a.Outcome), a, a.RetryCount))
		}
		md.WriteString("\n")
	}

	if m := snap.Mapping; m != nil && !m.Complete() {
		md.WriteString("## Unmatched\n\n")
		for _, s := range m.UnmatchedSegments {
			md.WriteString(fmt.Sprintf("- segment %d\n", s.Index+1))
		}
		for _, f := range m.UnmatchedFields {
			md.WriteString(fmt.Sprintf("- field %s (`%s`)\n", escapeCell(f.Label), f.Selector))
		}
		md.WriteString("\n")
	}

	md.WriteString("## Counts\n\n")
	md.WriteString(fmt.Sprintf("- **Completed:** %d\n", snap.Completed()))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", len(snap.Failed())))
	md.WriteString(fmt.Sprintf("- **Attempted:** %d\n", len(snap.Attempts)))
	return md.String()
}

func outcomeIcon(o fill.Outcome) string {
	switch o {
	case fill.OutcomeSucceeded:
		return "✅"
	case fill.OutcomeFailed:
		return "❌"
	default:
		return "⏭"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
	amber      = lipgloss.Color("#FDE68A")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	failureStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	skippedStyle = lipgloss.NewStyle().
			Foreground(amber)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)

// Summary renders a boxed terminal summary of a session.
func Summary(snap fill.Snapshot) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Fill "+string(snap.Status)) + "\n")
	b.WriteString(labelStyle.Render("session ") + snap.ID + "\n")
	b.WriteString(labelStyle.Render("form    ") + snap.FormURL + "\n")

	if len(snap.Attempts) > 0 {
		b.WriteString("\n")
	}
	for _, a := range snap.Attempts {
		name := a.Label
		if name == "" {
			name = a.Selector
		}
		b.WriteString(fmt.Sprintf("%s %s\n", outcomeStyle(a.Outcome).Render(outcomeIcon(a.Outcome)+" "+a.String()), name))
	}

	if snap.Failure != nil {
		b.WriteString("\n" + failureStyle.Render(snap.Failure.Message) + "\n")
	}
	b.WriteString(fmt.Sprintf("\n%s %d/%d", labelStyle.Render("completed"), snap.Completed(), len(snap.Attempts)))

	return boxStyle.Render(b.String())
}

func outcomeStyle(o fill.Outcome) lipgloss.Style {
	switch o {
	case fill.OutcomeSucceeded:
		return successStyle
	case fill.OutcomeFailed:
		return failureStyle
	default:
		return skippedStyle
	}
}

// Forms renders analyzed forms as an indented list.
func Forms(forms []form.FormDescriptor) string {
	if len(forms) == 0 {
		return labelStyle.Render("no forms found")
	}

	var b strings.Builder
	for i, f := range forms {
		b.WriteString(headerStyle.Render(fmt.Sprintf("[%d] %s", i, f.Category)))
		b.WriteString(" " + labelStyle.Render(f.Selector) + "\n")
		if f.Purpose != "" {
			b.WriteString("    " + f.Purpose + "\n")
		}
		for _, field := range f.Fields {
			line := fmt.Sprintf("    %-24s %-10s %s", field.Label, field.Kind, field.Selector)
			if field.Required {
				line += " *"
			}
			if field.Disabled || !field.Visible {
				b.WriteString(labelStyle.Render(line) + "\n")
				continue
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// HighlightJSON writes v as indented JSON, colourised for a 256-colour
// terminal when color is true.
func HighlightJSON(w io.Writer, v interface{}, color bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	if !color {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if err := quick.Highlight(w, string(data)+"\n", "json", "terminal256", "monokai"); err != nil {
		return fmt.Errorf("failed to highlight: %w", err)
	}
	return nil
}

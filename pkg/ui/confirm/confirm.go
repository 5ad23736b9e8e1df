// Package confirm asks the operator, in the terminal, to approve a mapping
// that was not entirely positional before any field is written.
package confirm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/mapping"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mutedGray  = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(salmonPink)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	tableBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink)
)

type keyMap struct {
	Accept key.Binding
	Reject key.Binding
}

var keys = keyMap{
	Accept: key.NewBinding(
		key.WithKeys("y", "ctrl+a", "enter"),
		key.WithHelp("y/enter", "accept"),
	),
	Reject: key.NewBinding(
		key.WithKeys("n", "ctrl+r", "esc", "ctrl+c", "q"),
		key.WithHelp("n/esc", "reject"),
	),
}

const maxValueWidth = 32

// Model is the bubbletea model of the confirmation prompt.
type Model struct {
	title    string
	table    table.Model
	decided  bool
	approved bool
}

// NewModel builds the prompt for snap's mapping.
func NewModel(snap fill.Snapshot) Model {
	columns := []table.Column{
		{Title: "Field", Width: 24},
		{Title: "Value", Width: maxValueWidth},
		{Title: "Confidence", Width: 10},
		{Title: "Score", Width: 5},
	}

	rows := Rows(snap.Mapping)
	height := len(rows)
	if height > 12 {
		height = 12
	}
	if height < 1 {
		height = 1
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedGray).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#1F2937")).
		Background(salmonPink)
	t.SetStyles(styles)

	return Model{
		title: fmt.Sprintf("Review mapping for %s", snap.FormURL),
		table: t,
	}
}

// Rows renders a mapping as table rows: pairs first, in field order, then
// unmatched segments and fields.
func Rows(r *mapping.Result) []table.Row {
	if r == nil {
		return nil
	}

	var rows []table.Row
	for _, p := range r.Pairs {
		score := ""
		if p.Confidence != mapping.ConfidenceHigh {
			score = fmt.Sprintf("%.2f", p.Score)
		}
		rows = append(rows, table.Row{p.Field.Label, truncate(p.Segment.Value), string(p.Confidence), score})
	}
	for _, s := range r.UnmatchedSegments {
		rows = append(rows, table.Row{"(none)", truncate(s.Value), "unmatched", ""})
	}
	for _, f := range r.UnmatchedFields {
		rows = append(rows, table.Row{f.Label, "(skipped)", "unmatched", ""})
	}
	return rows
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxValueWidth {
		return s
	}
	return string(r[:maxValueWidth-1]) + "…"
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.Accept):
			m.decided, m.approved = true, true
			return m, tea.Quit
		case key.Matches(keyMsg, keys.Reject):
			m.decided, m.approved = true, false
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.decided {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(tableBoxStyle.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("%s: %s • %s: %s • ↑/↓: scroll",
		keys.Accept.Help().Key, keys.Accept.Help().Desc,
		keys.Reject.Help().Key, keys.Reject.Help().Desc)))
	b.WriteString("\n")
	return b.String()
}

// Approved reports whether the operator accepted the mapping.
func (m Model) Approved() bool {
	return m.decided && m.approved
}

// Prompt returns a fill.ConfirmFunc that runs the prompt on in/out. The
// prompt ends with a rejection when ctx is canceled.
func Prompt(in io.Reader, out io.Writer) fill.ConfirmFunc {
	return func(ctx context.Context, snap fill.Snapshot) (bool, error) {
		p := tea.NewProgram(NewModel(snap),
			tea.WithInput(in),
			tea.WithOutput(out),
			tea.WithContext(ctx),
		)
		final, err := p.Run()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fmt.Errorf("confirmation prompt: %w", err)
		}
		m, ok := final.(Model)
		if !ok {
			return false, fmt.Errorf("confirmation prompt returned %T", final)
		}
		return m.Approved(), nil
	}
}

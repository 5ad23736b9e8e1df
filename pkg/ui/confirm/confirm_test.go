package confirm

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/mapping"
)

func snapshot() fill.Snapshot {
	return fill.Snapshot{
		FormURL: "https://example.com/contact",
		Mapping: &mapping.Result{
			Pairs: []mapping.Pair{
				{
					Segment:    mapping.Segment{Index: 0, Value: "john@example.com"},
					Field:      form.FieldDescriptor{Selector: "#email", Label: "Email"},
					Confidence: mapping.ConfidenceMedium,
					Score:      0.875,
				},
				{
					Segment:    mapping.Segment{Index: 1, Value: strings.Repeat("x", 40)},
					Field:      form.FieldDescriptor{Selector: "#notes", Label: "Notes"},
					Confidence: mapping.ConfidenceHigh,
					Score:      1,
				},
			},
			UnmatchedSegments: []mapping.Segment{{Index: 2, Value: "extra"}},
			UnmatchedFields:   []form.FieldDescriptor{{Selector: "#phone", Label: "Phone"}},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(snapshot().Mapping)
	require.Len(t, rows, 4)

	assert.Equal(t, "Email", rows[0][0])
	assert.Equal(t, "medium", rows[0][2])
	assert.Equal(t, "0.88", rows[0][3])

	assert.Empty(t, rows[1][3], "positional pairs have no score")
	assert.Len(t, []rune(rows[1][1]), maxValueWidth)
	assert.True(t, strings.HasSuffix(rows[1][1], "…"))

	assert.Equal(t, []string{"(none)", "extra", "unmatched", ""}, []string(rows[2]))
	assert.Equal(t, []string{"Phone", "(skipped)", "unmatched", ""}, []string(rows[3]))

	assert.Nil(t, Rows(nil))
}

func press(m tea.Model, k string) (tea.Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	return m.Update(msg)
}

func TestModel_Decisions(t *testing.T) {
	tests := []struct {
		key      string
		approved bool
	}{
		{"y", true},
		{"enter", true},
		{"n", false},
		{"esc", false},
		{"q", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, cmd := press(NewModel(snapshot()), tt.key)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.Equal(t, tt.approved, m.(Model).Approved())
			assert.Empty(t, m.View())
		})
	}
}

func TestModel_OtherKeysKeepPrompting(t *testing.T) {
	m, _ := press(NewModel(snapshot()), "j")
	assert.False(t, m.(Model).Approved())

	view := m.View()
	assert.Contains(t, view, "Review mapping for https://example.com/contact")
	assert.Contains(t, view, "Email")
	assert.Contains(t, view, "y/enter: accept")
}

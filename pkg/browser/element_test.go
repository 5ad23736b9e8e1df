package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippypour/pkg/page"
)

var countryOptions = []Option{
	{Value: "", Label: "Choose..."},
	{Value: "us", Label: "United States"},
	{Value: "ca", Label: "Canada"},
}

func textState() ElementState {
	return ElementState{Found: true, Tag: "input", Type: "text", Visible: true}
}

func TestDecodeCandidates(t *testing.T) {
	raw := `[{"tag":"input","attributes":{"type":"email","name":"email"},"selector":"#email","visible":true,"container":"#contact","labelText":"Email"},
	{"tag":"select","attributes":{"name":"country"},"selector":"select[name=\"country\"]","visible":true,"container":"#contact","labelText":"","options":["Canada","Mexico"]}]`

	got, err := DecodeCandidates(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "#email", got[0].Selector)
	assert.Equal(t, "email", got[0].Attr("type"))
	assert.Equal(t, "Email", got[0].LabelText)
	assert.Equal(t, []string{"Canada", "Mexico"}, got[1].Options)

	_, err = DecodeCandidates("not json")
	assert.Error(t, err)
}

func TestDecodeState(t *testing.T) {
	s, err := DecodeState(`{"found":true,"tag":"select","type":"","visible":true,"options":[{"value":"ca","label":"Canada","selected":true}]}`)
	require.NoError(t, err)
	assert.True(t, s.Found)
	assert.Equal(t, "select", s.Tag)
	require.Len(t, s.Options, 1)
	assert.True(t, s.Options[0].Selected)

	s, err = DecodeState(`{"found":false}`)
	require.NoError(t, err)
	assert.False(t, s.Found)
}

func TestElementState_Check(t *testing.T) {
	tests := []struct {
		name   string
		state  ElementState
		reason page.WriteReason
	}{
		{"missing", ElementState{}, page.ReasonSelectorNotFound},
		{"disabled", ElementState{Found: true, Tag: "input", Disabled: true, Visible: true}, page.ReasonNotInteractable},
		{"read-only", ElementState{Found: true, Tag: "input", ReadOnly: true, Visible: true}, page.ReasonNotInteractable},
		{"hidden", ElementState{Found: true, Tag: "input"}, page.ReasonNotInteractable},
		{"hidden type", ElementState{Found: true, Tag: "input", Type: "hidden", Visible: true}, page.ReasonNotInteractable},
		{"button", ElementState{Found: true, Tag: "button", Visible: true}, page.ReasonNotInteractable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Check("#f")
			require.NotNil(t, err)
			assert.Equal(t, tt.reason, err.Reason)
			assert.Equal(t, "#f", err.Selector)
		})
	}

	assert.Nil(t, textState().Check("#ok"))
}

func TestElementState_Plan(t *testing.T) {
	p, err := textState().Plan("#name", "John Doe")
	require.NoError(t, err)
	assert.Equal(t, Plan{Action: ActionFill, Value: "John Doe"}, p)

	box := ElementState{Found: true, Tag: "input", Type: "checkbox", Visible: true}
	p, err = box.Plan("#agree", "Yes")
	require.NoError(t, err)
	assert.Equal(t, Plan{Action: ActionCheck, Checked: true}, p)

	p, err = box.Plan("#agree", "nope")
	require.NoError(t, err)
	assert.False(t, p.Checked)

	sel := ElementState{Found: true, Tag: "select", Visible: true, Options: countryOptions}
	p, err = sel.Plan("#country", "canada")
	require.NoError(t, err)
	assert.Equal(t, Plan{Action: ActionSelect, Value: "ca"}, p)

	_, err = sel.Plan("#country", "Atlantis")
	require.Error(t, err)
	assert.Equal(t, page.ReasonNotInteractable, page.ReasonOf(err))

	_, err = ElementState{}.Plan("#gone", "x")
	assert.Equal(t, page.ReasonSelectorNotFound, page.ReasonOf(err))
}

func TestPlan_Args(t *testing.T) {
	args := Plan{Action: ActionCheck, Checked: true}.Args("#agree")
	assert.Equal(t, "#agree", args["selector"])
	assert.Equal(t, "check", args["action"])
	assert.Equal(t, true, args["checked"])
}

func TestElementState_ReadBack(t *testing.T) {
	s := textState()
	s.Value = "John"
	assert.Equal(t, page.Readback{Matches: true, Actual: "John"}, s.ReadBack("John"))
	assert.False(t, s.ReadBack("Jane").Matches)

	box := ElementState{Found: true, Tag: "input", Type: "checkbox", Visible: true, Checked: true}
	assert.True(t, box.ReadBack("yes").Matches)
	assert.Equal(t, "true", box.ReadBack("no").Actual)
	assert.False(t, box.ReadBack("no").Matches)

	opts := append([]Option(nil), countryOptions...)
	opts[2].Selected = true
	sel := ElementState{Found: true, Tag: "select", Visible: true, Options: opts}
	assert.Equal(t, page.Readback{Matches: true, Actual: "Canada"}, sel.ReadBack("Canada"))
	assert.True(t, sel.ReadBack("ca").Matches)
	assert.False(t, sel.ReadBack("us").Matches)

	assert.False(t, ElementState{}.ReadBack("x").Matches)
}

func TestParseToggle(t *testing.T) {
	for _, v := range []string{"true", "Yes", " y ", "1", "ON", "checked", "x"} {
		assert.True(t, ParseToggle(v), v)
	}
	for _, v := range []string{"", "no", "false", "0", "maybe"} {
		assert.False(t, ParseToggle(v), v)
	}
}

func TestMatchOption(t *testing.T) {
	o, ok := MatchOption(countryOptions, "us")
	require.True(t, ok)
	assert.Equal(t, "United States", o.Label)

	o, ok = MatchOption(countryOptions, "UNITED STATES")
	require.True(t, ok)
	assert.Equal(t, "us", o.Value)

	o, ok = MatchOption(countryOptions, "CA")
	require.True(t, ok)
	assert.Equal(t, "Canada", o.Label)

	_, ok = MatchOption(countryOptions, "Atlantis")
	assert.False(t, ok)
}

func TestHandle(t *testing.T) {
	h := NewHandle("https://example.com", "Example")
	assert.NotEmpty(t, h.ID())
	assert.NotEqual(t, h.ID(), NewHandle("https://example.com", "Example").ID())

	r := h.Refreshed("https://example.com/next", "Next")
	assert.Equal(t, h.ID(), r.ID())
	assert.Equal(t, "https://example.com/next", r.URL())
	assert.Equal(t, "Next", r.Title())
	assert.Equal(t, "https://example.com", h.URL())
}

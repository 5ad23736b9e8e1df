package browser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/page"
)

// Option is one <option> of a select element.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// ElementState is a snapshot of one element, as reported by StateScript or
// computed by the static driver.
type ElementState struct {
	Found    bool     `json:"found"`
	Tag      string   `json:"tag"`
	Type     string   `json:"type"`
	Disabled bool     `json:"disabled"`
	ReadOnly bool     `json:"readOnly"`
	Visible  bool     `json:"visible"`
	Value    string   `json:"value"`
	Checked  bool     `json:"checked"`
	Options  []Option `json:"options,omitempty"`
}

// Action is what a write does to an element.
type Action string

const (
	ActionFill   Action = "fill"
	ActionSelect Action = "select"
	ActionCheck  Action = "check"
)

// Plan is a resolved write: the action plus the exact value to apply.
type Plan struct {
	Action  Action `json:"action"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

// Args returns the plan as the argument object WriteScript expects.
func (p Plan) Args(selector string) map[string]interface{} {
	return map[string]interface{}{
		"selector": selector,
		"action":   string(p.Action),
		"value":    p.Value,
		"checked":  p.Checked,
	}
}

// DecodeCandidates parses the JSON returned by ProbeScript.
func DecodeCandidates(raw string) ([]page.Candidate, error) {
	var out []page.Candidate
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode probe result: %w", err)
	}
	return out, nil
}

// DecodeState parses the JSON returned by StateScript.
func DecodeState(raw string) (ElementState, error) {
	var s ElementState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ElementState{}, fmt.Errorf("decode element state: %w", err)
	}
	return s, nil
}

// Kind returns the element's input kind.
func (s ElementState) Kind() form.InputKind {
	return form.ParseInputKind(s.Tag, s.Type)
}

// Check returns a WriteError when the element cannot take a value.
func (s ElementState) Check(selector string) *page.WriteError {
	switch {
	case !s.Found:
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	case s.Disabled:
		return page.NewWriteError(selector, page.ReasonNotInteractable, fmt.Errorf("element is disabled"))
	case s.ReadOnly && !s.Kind().IsToggle() && s.Tag != "select":
		return page.NewWriteError(selector, page.ReasonNotInteractable, fmt.Errorf("element is read-only"))
	case !s.Visible:
		return page.NewWriteError(selector, page.ReasonNotInteractable, fmt.Errorf("element is not visible"))
	case !form.IsFillable(s.Tag, s.Type):
		return page.NewWriteError(selector, page.ReasonNotInteractable, fmt.Errorf("%s[type=%s] does not take a value", s.Tag, s.Type))
	}
	return nil
}

// Plan checks the element and resolves how value is applied to it.
func (s ElementState) Plan(selector, value string) (Plan, error) {
	if err := s.Check(selector); err != nil {
		return Plan{}, err
	}

	switch {
	case s.Kind().IsToggle():
		return Plan{Action: ActionCheck, Checked: ParseToggle(value)}, nil
	case s.Tag == "select":
		opt, ok := MatchOption(s.Options, value)
		if !ok {
			return Plan{}, page.NewWriteError(selector, page.ReasonNotInteractable, fmt.Errorf("no option matches %q", value))
		}
		return Plan{Action: ActionSelect, Value: opt.Value}, nil
	default:
		return Plan{Action: ActionFill, Value: value}, nil
	}
}

// ReadBack compares the element's current state with the intended value.
func (s ElementState) ReadBack(want string) page.Readback {
	if !s.Found {
		return page.Readback{}
	}

	switch {
	case s.Kind().IsToggle():
		return page.Readback{
			Matches: s.Checked == ParseToggle(want),
			Actual:  strconv.FormatBool(s.Checked),
		}
	case s.Tag == "select":
		for _, o := range s.Options {
			if !o.Selected {
				continue
			}
			target, ok := MatchOption(s.Options, want)
			return page.Readback{Matches: ok && target.Value == o.Value, Actual: o.Label}
		}
		return page.Readback{}
	default:
		return page.Readback{Matches: s.Value == want, Actual: s.Value}
	}
}

var truthy = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true,
	"on": true, "checked": true, "x": true, "agree": true,
}

// ParseToggle interprets a segment written to a checkbox or radio.
func ParseToggle(value string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(value))]
}

// MatchOption finds the option for value: exact value first, then label
// ignoring case, then value ignoring case.
func MatchOption(options []Option, value string) (Option, bool) {
	v := strings.TrimSpace(value)
	for _, o := range options {
		if o.Value == v {
			return o, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(o.Label, v) {
			return o, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(o.Value, v) {
			return o, true
		}
	}
	return Option{}, false
}

package form

import (
	"strings"

	"github.com/entrhq/clippypour/pkg/page"
)

// LabelRule extracts a label from one source. It returns "" when the source
// has nothing to offer.
type LabelRule struct {
	Name    string
	Extract func(c page.Candidate) string
}

// LabelRules is the label inference chain in priority order. The first rule
// that yields non-empty text wins; sources are never combined.
var LabelRules = []LabelRule{
	{Name: "label", Extract: func(c page.Candidate) string { return c.LabelText }},
	{Name: "aria-label", Extract: attrRule("aria-label")},
	{Name: "placeholder", Extract: attrRule("placeholder")},
	{Name: "name", Extract: attrRule("name")},
}

func attrRule(name string) func(page.Candidate) string {
	return func(c page.Candidate) string {
		return c.Attr(name)
	}
}

// InferLabel walks LabelRules and returns the first label found, or
// UnnamedField.
func InferLabel(c page.Candidate) string {
	label, _ := inferLabel(c)
	return label
}

// inferLabel also reports which rule produced the label, "" for the fallback.
func inferLabel(c page.Candidate) (string, string) {
	for _, rule := range LabelRules {
		if text := normalizeSpace(rule.Extract(c)); text != "" {
			return text, rule.Name
		}
	}
	return UnnamedField, ""
}

// normalizeSpace collapses runs of whitespace, the way label text renders.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

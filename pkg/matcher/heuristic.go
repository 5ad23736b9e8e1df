// Package matcher provides SemanticMatcher implementations: a local
// heuristic over value shapes and an LLM-backed matcher.
package matcher

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/mapping"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	urlPattern    = regexp.MustCompile(`^(?i)(https?://|www\.)\S+$`)
	phonePattern  = regexp.MustCompile(`^\+?[\d\s().\-]{7,}$`)
	postalPattern = regexp.MustCompile(`^(?i)(\d{5}(-\d{4})?|[a-z]\d[a-z] ?\d[a-z]\d|[a-z]{1,2}\d[a-z\d]? ?\d[a-z]{2}|\d{4})$`)
	datePattern   = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})$`)
	streetPattern = regexp.MustCompile(`^\d+[a-zA-Z]?\s+\S+`)
	namePattern   = regexp.MustCompile(`^[\p{L}][\p{L}'.\-]*( [\p{L}][\p{L}'.\-]*){0,3}$`)
	cardPattern   = regexp.MustCompile(`^(\d[ \-]?){13,19}$`)
)

var booleanWords = map[string]bool{
	"yes": true, "no": true, "true": true, "false": true,
	"on": true, "off": true, "1": true, "0": true, "y": true, "n": true,
	"checked": true, "unchecked": true,
}

// shape is a recognized value format.
type shape string

const (
	shapeEmail   shape = "email address"
	shapeURL     shape = "url"
	shapePhone   shape = "phone number"
	shapeDate    shape = "date"
	shapePostal  shape = "postal code"
	shapeAddress shape = "address"
	shapeCard    shape = "payment card"
	shapeBoolean shape = "boolean"
	shapeName    shape = "name"
	shapeNone    shape = ""
)

// classify returns the most specific shape of a value. Order matters: an
// email also looks like a URL-less token, a card number like a phone.
func classify(value string) shape {
	v := strings.TrimSpace(value)
	digits := countDigits(v)

	switch {
	case v == "":
		return shapeNone
	case emailPattern.MatchString(v):
		return shapeEmail
	case urlPattern.MatchString(v):
		return shapeURL
	case datePattern.MatchString(v):
		return shapeDate
	case cardPattern.MatchString(v) && digits >= 13:
		return shapeCard
	case postalPattern.MatchString(v):
		return shapePostal
	case phonePattern.MatchString(v) && digits >= 7:
		return shapePhone
	case booleanWords[strings.ToLower(v)]:
		return shapeBoolean
	case streetPattern.MatchString(v):
		return shapeAddress
	case namePattern.MatchString(v):
		return shapeName
	default:
		return shapeNone
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// compatible lists, for each suggested data type, the shapes that fit it
// and how strongly.
var compatible = map[string]map[shape]float64{
	"email address": {shapeEmail: 0.95},
	"url":           {shapeURL: 0.9},
	"phone number":  {shapePhone: 0.9, shapePostal: 0.3},
	"date":          {shapeDate: 0.9},
	"postal code":   {shapePostal: 0.85},
	"address":       {shapeAddress: 0.8, shapeName: 0.3},
	"city":          {shapeName: 0.55},
	"state":         {shapeName: 0.5},
	"country":       {shapeName: 0.5},
	"name":          {shapeName: 0.75},
	"first name":    {shapeName: 0.7},
	"last name":     {shapeName: 0.7},
	"username":      {shapeName: 0.5, shapeEmail: 0.4},
	"company":       {shapeName: 0.5},
	"payment card":  {shapeCard: 0.9},
	"boolean":       {shapeBoolean: 0.9},
	"message":       {shapeNone: 0.55, shapeName: 0.3},
	"subject":       {shapeNone: 0.5, shapeName: 0.45},
	"search query":  {shapeNone: 0.5, shapeName: 0.5},
}

// Heuristic scores segments by matching their shape against the field's
// suggested data type and kind. It needs no network and is always available.
type Heuristic struct{}

// NewHeuristic creates a heuristic matcher.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Available() bool { return true }

func (h *Heuristic) Score(ctx context.Context, field form.FieldDescriptor, candidates []mapping.Segment) ([]mapping.Score, error) {
	scores := make([]mapping.Score, len(candidates))
	for i, c := range candidates {
		scores[i] = mapping.Score{SegmentIndex: c.Index, Value: h.score(field, c.Value)}
	}
	return scores, nil
}

func (h *Heuristic) score(field form.FieldDescriptor, value string) float64 {
	if field.Kind == form.KindSelect && len(field.Options) > 0 {
		return optionScore(field.Options, value)
	}

	s := classify(value)
	if s == shapeNone && strings.TrimSpace(value) == "" {
		return 0
	}

	if field.Kind.IsToggle() {
		if s == shapeBoolean {
			return 0.9
		}
		return 0.1
	}

	if fits, ok := compatible[field.SuggestedDataType]; ok {
		return fits[s]
	}

	// Unknown field type: only plain text is a weak fit, anything with a
	// strong shape probably belongs to a more specific field.
	if s == shapeNone || s == shapeName {
		return 0.3
	}
	return 0.1
}

// optionScore is the best similarity between value and any option label.
func optionScore(options []string, value string) float64 {
	best := 0.0
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(value)) {
			return 0.95
		}
		if s := similarity(opt, value) * 0.9; s > best {
			best = s
		}
	}
	return best
}

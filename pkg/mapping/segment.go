// Package mapping aligns delimited data segments to form fields.
package mapping

import "strings"

// Delimiter separates data segments in operator input. The presentation
// layers depend on it; it must not change.
const Delimiter = "||"

// Segment is one trimmed piece of the operator's data string.
type Segment struct {
	// Index is the zero-based position in the original input.
	Index int    `json:"index"`
	Value string `json:"value"`
}

// Split cuts data on Delimiter and trims each piece. Empty pieces between
// delimiters are kept so positions stay aligned with the input; an input
// that is blank after trimming yields no segments.
func Split(data string) []Segment {
	if strings.TrimSpace(data) == "" {
		return nil
	}

	parts := strings.Split(data, Delimiter)
	segments := make([]Segment, len(parts))
	for i, p := range parts {
		segments[i] = Segment{Index: i, Value: strings.TrimSpace(p)}
	}
	return segments
}

// Join renders segment values back into a data string.
func Join(segments []Segment) string {
	values := make([]string, len(segments))
	for i, s := range segments {
		values[i] = s.Value
	}
	return strings.Join(values, " "+Delimiter+" ")
}

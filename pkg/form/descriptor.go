package form

import "fmt"

// UnnamedField is the label used when no label source yields text.
const UnnamedField = "Unnamed Field"

// UnknownDataType is the suggested data type when no heuristic applies.
const UnknownDataType = "unknown"

// FieldDescriptor describes one detected form field. Descriptors are
// created fresh on every analysis pass and never mutated afterwards.
type FieldDescriptor struct {
	// Selector is unique within the analyzed page at analysis time. It is
	// not guaranteed to survive page mutations.
	Selector string `json:"selector"`

	// Label is the human-readable name inferred from label sources.
	Label string `json:"label"`

	Kind InputKind `json:"kind"`

	// SuggestedDataType is an advisory semantic hint such as "email address".
	SuggestedDataType string `json:"suggested_data_type"`

	Required bool `json:"required"`

	// Disabled and Visible record actionability at analysis time. They do
	// not exclude the field from mapping.
	Disabled bool `json:"disabled"`
	Visible  bool `json:"visible"`

	// Options holds select option labels, in page order.
	Options []string `json:"options,omitempty"`
}

// FormDescriptor is an ordered set of fields belonging to one form-like
// container on a page.
type FormDescriptor struct {
	// Selector identifies the container.
	Selector string `json:"selector"`

	URL   string `json:"url"`
	Title string `json:"title"`

	// Purpose is a one-line description of the form's inferred intent.
	Purpose string `json:"purpose"`

	// Category is one of the Category* constants.
	Category string `json:"category"`

	Fields []FieldDescriptor `json:"fields"`
}

// Selectors returns the field selectors in field order.
func (f FormDescriptor) Selectors() []string {
	out := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		out[i] = field.Selector
	}
	return out
}

// Synthetic builds a descriptor from operator-supplied selectors, used when
// analysis is bypassed. Nothing is known about the fields beyond their order.
func Synthetic(url string, selectors []string) FormDescriptor {
	fields := make([]FieldDescriptor, len(selectors))
	for i, sel := range selectors {
		fields[i] = FieldDescriptor{
			Selector:          sel,
			Label:             UnnamedField,
			Kind:              KindUnknown,
			SuggestedDataType: UnknownDataType,
			Visible:           true,
		}
	}
	return FormDescriptor{
		Selector: "",
		URL:      url,
		Purpose:  fmt.Sprintf("Operator-selected fields (%d)", len(selectors)),
		Category: CategoryOther,
		Fields:   fields,
	}
}

// AnalysisError is returned when a page exposes no analyzable form.
type AnalysisError struct {
	URL    string
	Reason string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of %s failed: %s", e.URL, e.Reason)
}

package form

import (
	"fmt"
	"strings"
)

// InputKind is the closed set of field kinds the engine understands.
type InputKind int

const (
	KindUnknown InputKind = iota
	KindText
	KindEmail
	KindPassword
	KindTel
	KindURL
	KindTextarea
	KindSelect
	KindCheckbox
	KindRadio
	KindDate
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindText:     "text",
	KindEmail:    "email",
	KindPassword: "password",
	KindTel:      "tel",
	KindURL:      "url",
	KindTextarea: "textarea",
	KindSelect:   "select",
	KindCheckbox: "checkbox",
	KindRadio:    "radio",
	KindDate:     "date",
}

func (k InputKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k InputKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unknown names are an error here,
// unlike ParseInputKind, because stored data is expected to be well formed.
func (k *InputKind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = InputKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown input kind %q", text)
}

// IsToggle reports whether the field takes a boolean-like value.
func (k InputKind) IsToggle() bool {
	return k == KindCheckbox || k == KindRadio
}

// ParseInputKind normalizes an element tag and type attribute into a kind.
// Values outside the enumeration map to KindUnknown.
func ParseInputKind(tag, typ string) InputKind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "textarea":
		return KindTextarea
	case "select":
		return KindSelect
	case "input", "":
	default:
		return KindUnknown
	}

	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text":
		return KindText
	case "email":
		return KindEmail
	case "password":
		return KindPassword
	case "tel":
		return KindTel
	case "url":
		return KindURL
	case "checkbox":
		return KindCheckbox
	case "radio":
		return KindRadio
	case "date":
		return KindDate
	default:
		return KindUnknown
	}
}

// nonFillableTypes are input types that carry no operator data.
var nonFillableTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// IsFillable reports whether an element with this tag and type can receive
// a data segment at all. Hidden inputs and buttons are never fields.
func IsFillable(tag, typ string) bool {
	switch strings.ToLower(tag) {
	case "textarea", "select":
		return true
	case "input":
		return !nonFillableTypes[strings.ToLower(strings.TrimSpace(typ))]
	default:
		return false
	}
}

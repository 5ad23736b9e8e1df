package form

import (
	"fmt"
	"strings"
)

// Form categories.
const (
	CategoryContact      = "contact"
	CategoryLogin        = "login"
	CategoryRegistration = "registration"
	CategoryPayment      = "payment"
	CategorySubscription = "subscription"
	CategorySearch       = "search"
	CategorySurvey       = "survey"
	CategoryOther        = "other"
)

// kindDataTypes maps kinds that carry their own semantics straight to a
// data type. Keyword matching is only needed for the generic kinds.
var kindDataTypes = map[InputKind]string{
	KindEmail:    "email address",
	KindPassword: "password",
	KindTel:      "phone number",
	KindURL:      "url",
	KindDate:     "date",
	KindCheckbox: "boolean",
}

type keywordRule struct {
	keywords []string
	dataType string
}

// labelKeywordRules is checked in order against the lowercased label and
// name; the first rule with a matching keyword wins.
var labelKeywordRules = []keywordRule{
	{[]string{"mail"}, "email address"},
	{[]string{"password", "passwd", "pwd"}, "password"},
	{[]string{"phone", "mobile", "telephone"}, "phone number"},
	{[]string{"first name", "firstname", "first_name", "given"}, "first name"},
	{[]string{"last name", "lastname", "last_name", "surname", "family"}, "last name"},
	{[]string{"user"}, "username"},
	{[]string{"name"}, "name"},
	{[]string{"zip", "postal", "postcode"}, "postal code"},
	{[]string{"street", "address", "addr"}, "address"},
	{[]string{"city", "town"}, "city"},
	{[]string{"state", "province", "region"}, "state"},
	{[]string{"country"}, "country"},
	{[]string{"company", "organization", "organisation", "employer"}, "company"},
	{[]string{"card", "cc-", "cvv", "cvc", "expir"}, "payment card"},
	{[]string{"birth", "dob", "date"}, "date"},
	{[]string{"website", "url", "homepage"}, "url"},
	{[]string{"message", "comment", "note", "description"}, "message"},
	{[]string{"subject", "title"}, "subject"},
	{[]string{"search", "query"}, "search query"},
}

// SuggestDataType classifies a field from its kind and label. It never
// fails; UnknownDataType means no confident guess.
func SuggestDataType(kind InputKind, label, name string) string {
	if t, ok := kindDataTypes[kind]; ok {
		return t
	}

	if label == UnnamedField {
		label = ""
	}
	text := strings.ToLower(label + " " + name)
	for _, rule := range labelKeywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.dataType
			}
		}
	}

	if kind == KindTextarea {
		return "message"
	}
	return UnknownDataType
}

// Categorize infers the form category and a one-line purpose from its fields.
func Categorize(fields []FieldDescriptor) (string, string) {
	count := func(types ...string) int {
		n := 0
		for _, f := range fields {
			for _, t := range types {
				if f.SuggestedDataType == t {
					n++
				}
			}
		}
		return n
	}

	passwords := count("password")
	switch {
	case len(fields) == 0:
		return CategoryOther, "Empty form"
	case count("payment card") > 0:
		return CategoryPayment, "Collects payment card details"
	case passwords > 1 || (passwords == 1 && count("email address", "first name", "last name", "name") > 1):
		return CategoryRegistration, "Creates a new account"
	case passwords == 1:
		return CategoryLogin, "Signs in to an existing account"
	case len(fields) == 1 && count("search query") == 1:
		return CategorySearch, "Searches the site"
	case len(fields) <= 2 && count("email address") == 1:
		return CategorySubscription, "Subscribes an email address"
	case count("message") > 0 && count("email address", "name", "first name", "phone number") > 0:
		return CategoryContact, "Sends a message to the site owner"
	case count("boolean") > len(fields)/2 || countKind(fields, KindRadio) > len(fields)/2:
		return CategorySurvey, "Collects survey answers"
	default:
		return CategoryOther, fmt.Sprintf("Collects %d field(s)", len(fields))
	}
}

func countKind(fields []FieldDescriptor, kind InputKind) int {
	n := 0
	for _, f := range fields {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

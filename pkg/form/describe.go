package form

import "context"

// Description refines an analyzed form. Empty values leave the heuristic
// result in place.
type Description struct {
	Purpose  string
	Category string

	// DataTypes maps field selectors to a suggested data type.
	DataTypes map[string]string
}

// Describer refines the purpose, category and field data types of an
// analyzed form, typically with a language model.
type Describer interface {
	DescribeForm(ctx context.Context, d FormDescriptor) (Description, error)
}

// WithDescriber lets d refine every analyzed form. Describer failures are
// logged and the heuristic result is kept.
func WithDescriber(d Describer) Option {
	return func(a *Analyzer) {
		a.describer = d
	}
}

// Categories lists the known form categories.
var Categories = []string{
	CategoryContact,
	CategoryLogin,
	CategoryRegistration,
	CategoryPayment,
	CategorySubscription,
	CategorySearch,
	CategorySurvey,
	CategoryOther,
}

// IsCategory reports whether c is one of the Category* constants.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Apply returns d with the non-empty parts of desc applied. Unknown
// categories and selectors are ignored.
func (desc Description) Apply(d FormDescriptor) FormDescriptor {
	if desc.Purpose != "" {
		d.Purpose = desc.Purpose
	}
	if IsCategory(desc.Category) {
		d.Category = desc.Category
	}
	if len(desc.DataTypes) == 0 {
		return d
	}

	fields := make([]FieldDescriptor, len(d.Fields))
	copy(fields, d.Fields)
	for i, f := range fields {
		if dt := desc.DataTypes[f.Selector]; dt != "" {
			fields[i].SuggestedDataType = dt
		}
	}
	d.Fields = fields
	return d
}

func (a *Analyzer) describe(ctx context.Context, d FormDescriptor) FormDescriptor {
	desc, err := a.describer.DescribeForm(ctx, d)
	if err != nil {
		a.logger.Warnf("Keeping heuristic description of %s: %v", d.Selector, err)
		return d
	}
	return desc.Apply(d)
}

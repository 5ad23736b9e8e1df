// Package form turns raw page candidates into normalized form descriptors.
package form

import (
	"context"

	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/page"
)

// Analyzer converts probe results into FormDescriptors. It is read-only
// against the page and safe for concurrent use.
type Analyzer struct {
	prober    page.Prober
	describer Describer
	logger    *logging.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer's logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// NewAnalyzer creates an analyzer backed by prober.
func NewAnalyzer(prober page.Prober, opts ...Option) *Analyzer {
	a := &Analyzer{
		prober: prober,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze probes the page and returns one descriptor per form-like
// container, in the order containers first appear in the document.
//
// Probe failures are returned unchanged (*page.ProbeError). A page without
// any container holding a fillable field yields *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, h page.Handle) ([]FormDescriptor, error) {
	candidates, err := a.prober.Probe(ctx, h)
	if err != nil {
		return nil, err
	}

	var order []string
	groups := make(map[string][]FieldDescriptor)
	skipped := 0

	for _, c := range candidates {
		if c.Container == "" || !IsFillable(c.Tag, c.Attr("type")) {
			skipped++
			continue
		}
		if _, seen := groups[c.Container]; !seen {
			order = append(order, c.Container)
		}
		groups[c.Container] = append(groups[c.Container], Describe(c))
	}

	if len(order) == 0 {
		a.logger.Warnf("No form-like containers on %s (%d candidates skipped)", h.URL(), skipped)
		return nil, &AnalysisError{URL: h.URL(), Reason: "no form-like containers with fillable fields"}
	}

	forms := make([]FormDescriptor, 0, len(order))
	for _, container := range order {
		fields := groups[container]
		category, purpose := Categorize(fields)
		d := FormDescriptor{
			Selector: container,
			URL:      h.URL(),
			Title:    h.Title(),
			Purpose:  purpose,
			Category: category,
			Fields:   fields,
		}
		if a.describer != nil {
			d = a.describe(ctx, d)
		}
		forms = append(forms, d)
	}

	a.logger.Infof("Analyzed %s: %d form(s), %d candidate(s) skipped", h.URL(), len(forms), skipped)
	return forms, nil
}

// Describe normalizes a single candidate into a FieldDescriptor.
func Describe(c page.Candidate) FieldDescriptor {
	kind := ParseInputKind(c.Tag, c.Attr("type"))
	label := InferLabel(c)

	var options []string
	if len(c.Options) > 0 {
		options = append(options, c.Options...)
	}

	return FieldDescriptor{
		Selector:          c.Selector,
		Label:             label,
		Kind:              kind,
		SuggestedDataType: SuggestDataType(kind, label, c.Attr("name")),
		Required:          c.HasAttr("required") || c.Attr("aria-required") == "true",
		Disabled:          c.HasAttr("disabled"),
		Visible:           c.Visible,
		Options:           options,
	}
}

package mapping

import (
	"context"
	"errors"

	"github.com/entrhq/clippypour/pkg/form"
)

// Score is a matcher's relevance estimate for one segment.
type Score struct {
	// SegmentIndex is the Segment.Index the score refers to.
	SegmentIndex int `json:"segment_index"`

	// Value is in [0, 1].
	Value float64 `json:"score"`
}

// SemanticMatcher estimates how well each candidate segment fits a field.
// Its output is a hint: the mapper applies the threshold and tie-breaking.
type SemanticMatcher interface {
	// Available reports whether the matcher can produce scores at all.
	Available() bool

	Score(ctx context.Context, field form.FieldDescriptor, candidates []Segment) ([]Score, error)
}

// ErrNoMatcher is returned by NoMatcher.Score.
var ErrNoMatcher = errors.New("no semantic matcher configured")

// NoMatcher is the absent matcher.
type NoMatcher struct{}

func (NoMatcher) Available() bool { return false }

func (NoMatcher) Score(context.Context, form.FieldDescriptor, []Segment) ([]Score, error) {
	return nil, ErrNoMatcher
}

// Chain combines matchers, taking the highest score per segment across all
// available members. A failing member is skipped as long as another one
// produced scores.
type Chain []SemanticMatcher

func (c Chain) Available() bool {
	for _, m := range c {
		if m != nil && m.Available() {
			return true
		}
	}
	return false
}

func (c Chain) Score(ctx context.Context, field form.FieldDescriptor, candidates []Segment) ([]Score, error) {
	best := make(map[int]float64)
	var order []int
	var firstErr error
	answered := false

	for _, m := range c {
		if m == nil || !m.Available() {
			continue
		}
		scores, err := m.Score(ctx, field, candidates)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		answered = true
		for _, s := range scores {
			prev, seen := best[s.SegmentIndex]
			if !seen {
				order = append(order, s.SegmentIndex)
			}
			if !seen || s.Value > prev {
				best[s.SegmentIndex] = s.Value
			}
		}
	}

	if !answered {
		if firstErr == nil {
			firstErr = ErrNoMatcher
		}
		return nil, firstErr
	}

	out := make([]Score, len(order))
	for i, idx := range order {
		out[i] = Score{SegmentIndex: idx, Value: best[idx]}
	}
	return out, nil
}

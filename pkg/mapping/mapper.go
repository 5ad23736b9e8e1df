package mapping

import (
	"context"
	"fmt"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/logging"
)

// Confidence is a coarse trust label for a segment/field pairing.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DefaultThreshold is the minimum matcher score accepted for a pairing.
const DefaultThreshold = 0.5

// ReasonCountMismatch is the MappingError reason when counts differ and no
// semantic matcher is available.
const ReasonCountMismatch = "count-mismatch"

// Pair is one aligned segment and field.
type Pair struct {
	Segment    Segment              `json:"segment"`
	Field      form.FieldDescriptor `json:"field"`
	Confidence Confidence           `json:"confidence"`

	// Score is the matcher score that produced a medium pairing, or 1 for
	// positional pairings.
	Score float64 `json:"score"`
}

// Result is the outcome of a mapping pass. Pairs are in field order.
// Every segment and every field appears exactly once, either in a pair or
// in the matching unmatched list.
type Result struct {
	Pairs             []Pair                 `json:"pairs"`
	UnmatchedSegments []Segment              `json:"unmatched_segments"`
	UnmatchedFields   []form.FieldDescriptor `json:"unmatched_fields"`
}

// Complete reports whether nothing was left unmatched.
func (r *Result) Complete() bool {
	return len(r.UnmatchedSegments) == 0 && len(r.UnmatchedFields) == 0
}

// AllHigh reports whether every pair is positional.
func (r *Result) AllHigh() bool {
	for _, p := range r.Pairs {
		if p.Confidence != ConfidenceHigh {
			return false
		}
	}
	return true
}

// MappingError is returned when segments cannot be aligned at all.
type MappingError struct {
	Reason   string
	Segments int
	Fields   int
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed: %s (%d segments, %d fields)", e.Reason, e.Segments, e.Fields)
}

// Mapper aligns segments to fields.
type Mapper struct {
	matcher   SemanticMatcher
	threshold float64
	logger    *logging.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithMatcher sets the semantic matcher consulted when counts differ.
// A nil matcher is the same as NoMatcher.
func WithMatcher(m SemanticMatcher) Option {
	return func(mp *Mapper) {
		if m == nil {
			m = NoMatcher{}
		}
		mp.matcher = m
	}
}

// WithThreshold sets the acceptance threshold for matcher scores.
func WithThreshold(t float64) Option {
	return func(mp *Mapper) {
		mp.threshold = t
	}
}

// WithLogger sets the mapper's logger.
func WithLogger(l *logging.Logger) Option {
	return func(mp *Mapper) {
		mp.logger = l
	}
}

// NewMapper creates a mapper. Without WithMatcher it only handles inputs
// whose segment count equals the field count.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		matcher:   NoMatcher{},
		threshold: DefaultThreshold,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map aligns segments to fields.
//
// Equal counts align by position with high confidence and never consult the
// matcher. Otherwise each field, in order, takes the best-scoring unconsumed
// segment at or above the threshold with medium confidence; ties go to the
// earlier segment. Without a matcher, differing counts fail with
// *MappingError.
func (m *Mapper) Map(ctx context.Context, segments []Segment, fields []form.FieldDescriptor) (*Result, error) {
	if len(segments) == len(fields) {
		result := &Result{Pairs: make([]Pair, len(fields))}
		for i := range fields {
			result.Pairs[i] = Pair{
				Segment:    segments[i],
				Field:      fields[i],
				Confidence: ConfidenceHigh,
				Score:      1,
			}
		}
		return result, nil
	}

	if !m.matcher.Available() {
		m.logger.Warnf("Count mismatch: %d segments, %d fields, no semantic matcher", len(segments), len(fields))
		return nil, &MappingError{Reason: ReasonCountMismatch, Segments: len(segments), Fields: len(fields)}
	}

	return m.align(ctx, segments, fields)
}

func (m *Mapper) align(ctx context.Context, segments []Segment, fields []form.FieldDescriptor) (*Result, error) {
	consumed := make([]bool, len(segments))
	result := &Result{}

	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var candidates []Segment
		for i, s := range segments {
			if !consumed[i] {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) == 0 {
			result.UnmatchedFields = append(result.UnmatchedFields, field)
			continue
		}

		scores, err := m.matcher.Score(ctx, field, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warnf("Matcher failed for %s, leaving it unmatched: %v", field.Selector, err)
			result.UnmatchedFields = append(result.UnmatchedFields, field)
			continue
		}

		best, bestScore := m.pick(segments, consumed, scores)
		if best < 0 {
			result.UnmatchedFields = append(result.UnmatchedFields, field)
			continue
		}

		consumed[best] = true
		result.Pairs = append(result.Pairs, Pair{
			Segment:    segments[best],
			Field:      field,
			Confidence: ConfidenceMedium,
			Score:      bestScore,
		})
		m.logger.Debugf("Matched segment %d to %s (score %.2f)", segments[best].Index, field.Selector, bestScore)
	}

	for i, s := range segments {
		if !consumed[i] {
			result.UnmatchedSegments = append(result.UnmatchedSegments, s)
		}
	}
	return result, nil
}

// pick returns the position in segments of the best acceptable unconsumed
// segment, or -1. Scores naming consumed or unknown segments are ignored.
func (m *Mapper) pick(segments []Segment, consumed []bool, scores []Score) (int, float64) {
	position := make(map[int]int, len(segments))
	for i, s := range segments {
		position[s.Index] = i
	}

	best, bestScore := -1, 0.0
	for _, sc := range scores {
		pos, ok := position[sc.SegmentIndex]
		if !ok || consumed[pos] || sc.Value < m.threshold {
			continue
		}
		if best < 0 || sc.Value > bestScore || (sc.Value == bestScore && pos < best) {
			best, bestScore = pos, sc.Value
		}
	}
	return best, bestScore
}

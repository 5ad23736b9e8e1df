package mapping

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedMatcher scores segments with a per-field function and counts calls.
type scriptedMatcher struct {
	score func(field form.FieldDescriptor, s Segment) float64
	err   map[string]error
	calls int
}

func (m *scriptedMatcher) Available() bool { return true }

func (m *scriptedMatcher) Score(ctx context.Context, field form.FieldDescriptor, candidates []Segment) ([]Score, error) {
	m.calls++
	if err := m.err[field.Selector]; err != nil {
		return nil, err
	}
	out := make([]Score, len(candidates))
	for i, c := range candidates {
		out[i] = Score{SegmentIndex: c.Index, Value: m.score(field, c)}
	}
	return out, nil
}

func fields(selectors ...string) []form.FieldDescriptor {
	out := make([]form.FieldDescriptor, len(selectors))
	for i, s := range selectors {
		out[i] = form.FieldDescriptor{Selector: s, Label: strings.TrimPrefix(s, "#")}
	}
	return out
}

func TestSplit(t *testing.T) {
	segs := Split("John Doe || john@example.com ||123 Main St")
	require.Len(t, segs, 3)
	assert.Equal(t, Segment{Index: 0, Value: "John Doe"}, segs[0])
	assert.Equal(t, Segment{Index: 1, Value: "john@example.com"}, segs[1])
	assert.Equal(t, Segment{Index: 2, Value: "123 Main St"}, segs[2])

	assert.Nil(t, Split("   "))
	assert.Len(t, Split("single value"), 1)

	empty := Split("a |||| c")
	require.Len(t, empty, 3)
	assert.Equal(t, "", empty[1].Value)

	assert.Equal(t, "a || b", Join(Split("a||b")))
}

func TestMap_EqualCountsAllHigh(t *testing.T) {
	matcher := &scriptedMatcher{score: func(form.FieldDescriptor, Segment) float64 { return 0 }}
	for n := 0; n <= 5; n++ {
		segs := make([]Segment, n)
		fs := make([]form.FieldDescriptor, n)
		for i := 0; i < n; i++ {
			segs[i] = Segment{Index: i, Value: "v"}
			fs[i] = form.FieldDescriptor{Selector: "#f"}
		}

		for _, m := range []*Mapper{NewMapper(), NewMapper(WithMatcher(matcher))} {
			result, err := m.Map(context.Background(), segs, fs)
			require.NoError(t, err)
			assert.Len(t, result.Pairs, n)
			assert.True(t, result.Complete())
			assert.True(t, result.AllHigh())
		}
	}
	assert.Zero(t, matcher.calls, "fast path must not consult the matcher")
}

func TestMap_CountMismatchWithoutMatcher(t *testing.T) {
	for _, m := range []*Mapper{NewMapper(), NewMapper(WithMatcher(nil))} {
		_, err := m.Map(context.Background(), Split("a || b || c || d"), fields("#a", "#b", "#c"))

		var mappingErr *MappingError
		require.ErrorAs(t, err, &mappingErr)
		assert.Equal(t, ReasonCountMismatch, mappingErr.Reason)
		assert.Equal(t, 4, mappingErr.Segments)
		assert.Equal(t, 3, mappingErr.Fields)
	}
}

func TestMap_SemanticAlignment(t *testing.T) {
	matcher := &scriptedMatcher{score: func(f form.FieldDescriptor, s Segment) float64 {
		switch {
		case f.Selector == "#email" && strings.Contains(s.Value, "@"):
			return 0.9
		case f.Selector == "#name" && s.Value == "Jane":
			return 0.8
		default:
			return 0.1
		}
	}}

	result, err := NewMapper(WithMatcher(matcher)).Map(context.Background(),
		Split("jane@example.com || Jane || extra"), fields("#name", "#email"))
	require.NoError(t, err)

	require.Len(t, result.Pairs, 2)
	assert.Equal(t, "#name", result.Pairs[0].Field.Selector)
	assert.Equal(t, "Jane", result.Pairs[0].Segment.Value)
	assert.Equal(t, ConfidenceMedium, result.Pairs[0].Confidence)
	assert.Equal(t, "#email", result.Pairs[1].Field.Selector)
	assert.Equal(t, 0, result.Pairs[1].Segment.Index)

	require.Len(t, result.UnmatchedSegments, 1)
	assert.Equal(t, "extra", result.UnmatchedSegments[0].Value)
	assert.Empty(t, result.UnmatchedFields)
}

func TestMap_BelowThresholdLeftUnmatched(t *testing.T) {
	matcher := &scriptedMatcher{score: func(form.FieldDescriptor, Segment) float64 { return 0.49 }}

	result, err := NewMapper(WithMatcher(matcher)).Map(context.Background(), Split("a || b"), fields("#x", "#y", "#z"))
	require.NoError(t, err)
	assert.Empty(t, result.Pairs)
	assert.Len(t, result.UnmatchedSegments, 2)
	assert.Len(t, result.UnmatchedFields, 3)

	result, err = NewMapper(WithMatcher(matcher), WithThreshold(0.4)).Map(context.Background(), Split("a || b"), fields("#x", "#y", "#z"))
	require.NoError(t, err)
	assert.Len(t, result.Pairs, 2)
	assert.Len(t, result.UnmatchedFields, 1)
	assert.Equal(t, "#z", result.UnmatchedFields[0].Selector)
}

func TestMap_TieGoesToEarlierSegment(t *testing.T) {
	matcher := &scriptedMatcher{score: func(form.FieldDescriptor, Segment) float64 { return 0.7 }}

	result, err := NewMapper(WithMatcher(matcher)).Map(context.Background(), Split("first || second || third"), fields("#a", "#b"))
	require.NoError(t, err)
	require.Len(t, result.Pairs, 2)
	assert.Equal(t, "first", result.Pairs[0].Segment.Value)
	assert.Equal(t, "second", result.Pairs[1].Segment.Value)
	assert.Equal(t, "third", result.UnmatchedSegments[0].Value)
}

func TestMap_MatcherErrorIsAdvisory(t *testing.T) {
	matcher := &scriptedMatcher{
		score: func(form.FieldDescriptor, Segment) float64 { return 0.9 },
		err:   map[string]error{"#a": errors.New("model unavailable")},
	}

	result, err := NewMapper(WithMatcher(matcher)).Map(context.Background(), Split("x || y || z"), fields("#a", "#b"))
	require.NoError(t, err)
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, "#b", result.Pairs[0].Field.Selector)
	assert.Equal(t, "x", result.Pairs[0].Segment.Value)
	assert.Equal(t, "#a", result.UnmatchedFields[0].Selector)
	assert.Len(t, result.UnmatchedSegments, 2)
}

func TestMap_IgnoresScoresForConsumedOrUnknownSegments(t *testing.T) {
	m := NewMapper()
	segs := Split("a || b")
	consumed := []bool{true, false}

	pos, score := m.pick(segs, consumed, []Score{{SegmentIndex: 0, Value: 1}, {SegmentIndex: 7, Value: 1}, {SegmentIndex: 1, Value: 0.6}})
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0.6, score)
}

func TestMap_PreservesEveryInput(t *testing.T) {
	matcher := &scriptedMatcher{score: func(f form.FieldDescriptor, s Segment) float64 {
		if len(s.Value) == len(f.Label) {
			return 0.8
		}
		return 0
	}}

	segs := Split("aa || bbb || c || dddd || eeeee")
	fs := fields("#bbb", "#zz", "#eeeee")
	result, err := NewMapper(WithMatcher(matcher)).Map(context.Background(), segs, fs)
	require.NoError(t, err)

	assert.Equal(t, len(fs), len(result.Pairs)+len(result.UnmatchedFields))
	assert.Equal(t, len(segs), len(result.Pairs)+len(result.UnmatchedSegments))
	assert.LessOrEqual(t, len(result.Pairs), len(fs))
}

func TestMap_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matcher := &scriptedMatcher{score: func(form.FieldDescriptor, Segment) float64 { return 1 }}
	_, err := NewMapper(WithMatcher(matcher)).Map(ctx, Split("a || b"), fields("#a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain(t *testing.T) {
	low := &scriptedMatcher{score: func(form.FieldDescriptor, Segment) float64 { return 0.2 }}
	high := &scriptedMatcher{score: func(_ form.FieldDescriptor, s Segment) float64 {
		if s.Index == 1 {
			return 0.9
		}
		return 0
	}}
	broken := &scriptedMatcher{err: map[string]error{"#a": errors.New("boom")}}

	chain := Chain{NoMatcher{}, broken, low, high}
	assert.True(t, chain.Available())

	scores, err := chain.Score(context.Background(), form.FieldDescriptor{Selector: "#a"}, Split("x || y"))
	require.NoError(t, err)
	assert.Equal(t, []Score{{SegmentIndex: 0, Value: 0.2}, {SegmentIndex: 1, Value: 0.9}}, scores)

	_, err = Chain{broken}.Score(context.Background(), form.FieldDescriptor{Selector: "#a"}, Split("x"))
	assert.EqualError(t, err, "boom")

	assert.False(t, Chain{NoMatcher{}}.Available())
}

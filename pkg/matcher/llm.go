package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/llm"
	"github.com/entrhq/clippypour/pkg/llm/tokenizer"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/mapping"
	"github.com/entrhq/clippypour/pkg/types"
)

// DefaultSegmentTokens bounds how much of each segment is sent to the model.
const DefaultSegmentTokens = 64

const systemPrompt = `You match pieces of user data to web form fields.
You are given one form field and a numbered list of candidate values.
For every candidate, estimate how likely it is the value intended for the field.
Reply with JSON only, in this shape:
{"scores": [{"segment": <number>, "score": <0.0-1.0>}]}
Include every candidate exactly once. Do not explain.`

// LLM scores segments by asking a language model. Replies are treated as
// hints: malformed or partial answers degrade to missing scores.
type LLM struct {
	provider      llm.Provider
	tokenizer     *tokenizer.Tokenizer
	segmentTokens int
	logger        *logging.Logger
}

// LLMOption configures an LLM matcher.
type LLMOption func(*LLM)

// WithSegmentTokens sets the per-segment token budget.
func WithSegmentTokens(n int) LLMOption {
	return func(m *LLM) {
		if n > 0 {
			m.segmentTokens = n
		}
	}
}

// WithTokenizer sets the tokenizer used for the budget.
func WithTokenizer(t *tokenizer.Tokenizer) LLMOption {
	return func(m *LLM) {
		m.tokenizer = t
	}
}

// WithLogger sets the matcher's logger.
func WithLogger(l *logging.Logger) LLMOption {
	return func(m *LLM) {
		m.logger = l
	}
}

// NewLLM creates an LLM matcher. A nil provider yields a matcher that
// reports itself unavailable.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	m := &LLM{
		provider:      provider,
		segmentTokens: DefaultSegmentTokens,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tokenizer == nil && provider != nil {
		tok, err := tokenizer.ForModel(provider.GetModel())
		if err != nil {
			m.logger.Warnf("Token counting falls back to estimates: %v", err)
		}
		m.tokenizer = tok
	}
	return m
}

func (m *LLM) Available() bool {
	return m.provider != nil
}

func (m *LLM) Score(ctx context.Context, field form.FieldDescriptor, candidates []mapping.Segment) ([]mapping.Score, error) {
	if m.provider == nil {
		return nil, mapping.ErrNoMatcher
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	messages := []*types.Message{
		types.NewSystemMessage(systemPrompt),
		types.NewUserMessage(m.buildPrompt(field, candidates)),
	}
	m.logger.Debugf("Scoring %d candidate(s) for %s (%d prompt tokens)",
		len(candidates), field.Selector, m.tokenizer.CountMessagesTokens(messages))

	reply, err := m.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llm scoring for %s: %w", field.Selector, err)
	}

	scores, err := parseScores(reply.Content, candidates)
	if err != nil {
		return nil, fmt.Errorf("llm scoring for %s: %w", field.Selector, err)
	}
	return scores, nil
}

func (m *LLM) buildPrompt(field form.FieldDescriptor, candidates []mapping.Segment) string {
	var b strings.Builder
	b.WriteString("Field:\n")
	fmt.Fprintf(&b, "- label: %s\n", field.Label)
	fmt.Fprintf(&b, "- input type: %s\n", field.Kind)
	if field.SuggestedDataType != "" && field.SuggestedDataType != form.UnknownDataType {
		fmt.Fprintf(&b, "- expected data: %s\n", field.SuggestedDataType)
	}
	if field.Required {
		b.WriteString("- required: yes\n")
	}
	if len(field.Options) > 0 {
		fmt.Fprintf(&b, "- options: %s\n", strings.Join(field.Options, " | "))
	}

	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d: %q\n", c.Index, m.tokenizer.Truncate(c.Value, m.segmentTokens))
	}
	return b.String()
}

type scoreReply struct {
	Scores []struct {
		Segment int     `json:"segment"`
		Score   float64 `json:"score"`
	} `json:"scores"`
}

// parseScores extracts the JSON object from a model reply and keeps only
// scores for known candidates, clamped to [0, 1]. Duplicates keep the first.
func parseScores(content string, candidates []mapping.Segment) ([]mapping.Score, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var reply scoreReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}

	known := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		known[c.Index] = true
	}

	seen := make(map[int]bool)
	var scores []mapping.Score
	for _, s := range reply.Scores {
		if !known[s.Segment] || seen[s.Segment] {
			continue
		}
		seen[s.Segment] = true
		scores = append(scores, mapping.Score{SegmentIndex: s.Segment, Value: clamp(s.Score)})
	}
	return scores, nil
}

// extractJSON finds the JSON object in a reply that may be wrapped in a
// markdown code fence or surrounded by prose.
func extractJSON(content string) (string, error) {
	text := strings.TrimSpace(content)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	open := strings.Index(text, "{")
	closing := strings.LastIndex(text, "}")
	if open < 0 || closing < open {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return text[open : closing+1], nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

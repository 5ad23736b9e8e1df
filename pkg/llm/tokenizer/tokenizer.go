// Package tokenizer counts and trims prompt text in model tokens.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/entrhq/clippypour/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the model has no known encoding.
const DefaultEncoding = "cl100k_base"

// perMessageOverhead approximates the role and separator tokens the chat
// format adds to every message.
const perMessageOverhead = 4

// Tokenizer counts tokens with a tiktoken encoding. A Tokenizer without an
// encoding falls back to a four-characters-per-token estimate.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer with the default encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return &Tokenizer{}, fmt.Errorf("failed to load %s encoding: %w", DefaultEncoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// ForModel creates a tokenizer for a model name, falling back to the
// default encoding for models tiktoken does not know.
func ForModel(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &Tokenizer{enc: enc}, nil
}

// Estimating reports whether counts are approximations.
func (t *Tokenizer) Estimating() bool {
	return t == nil || t.enc == nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t.Estimating() {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens returns the prompt size of a message list.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + t.CountTokens(string(m.Role)) + t.CountTokens(m.Content)
	}
	return total
}

// Truncate cuts text to at most limit tokens.
func (t *Tokenizer) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if t.Estimating() {
		runes := []rune(text)
		if len(runes) <= limit*4 {
			return text
		}
		return string(runes[:limit*4])
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	// A token boundary can fall inside a multi-byte rune.
	return strings.ToValidUTF8(t.enc.Decode(tokens[:limit]), "")
}

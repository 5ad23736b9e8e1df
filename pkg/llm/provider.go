// Package llm provides abstractions for LLM provider integration.
//
// The fill engine uses a provider only as an optional semantic hint source
// when segment and field counts differ. Nothing in the core requires one.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o-mini"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*types.Message{
//	    types.NewUserMessage("Hello!"),
//	})
package llm

import (
	"context"

	"github.com/entrhq/clippypour/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication only. Prompt construction and reply
// parsing belong to the caller (see pkg/matcher).
type Provider interface {
	// Complete sends messages to the LLM and returns the full response.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the LLM model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}

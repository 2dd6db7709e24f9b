package llm

import (
	"context"
	"strings"
)

// Supported gateway providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// NewCompleter returns the Completer for provider. Unknown providers fall
// back to the OpenRouter-compatible client.
func NewCompleter(provider string, cfg Config, opts ...Option) Completer {
	if strings.EqualFold(strings.TrimSpace(provider), ProviderOpenAI) {
		return NewOpenAIClient(cfg, nil)
	}
	return NewClient(cfg, opts...)
}

// Ping verifies that model answers through c. Completers with their own
// probe use it; others get the one-word prompt as a regular completion.
func Ping(ctx context.Context, c Completer, model string) error {
	if p, ok := c.(interface {
		Ping(context.Context, string) error
	}); ok {
		return p.Ping(ctx, model)
	}
	_, err := c.Complete(ctx, model, "", pingPrompt)
	return err
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Completer using the official openai-go SDK against
// any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client      openai.Client
	temperature float64
	hasKey      bool
}

// NewOpenAIClient constructs a Completer backed by openai-go. An empty BaseURL
// targets api.openai.com.
func NewOpenAIClient(cfg Config, httpClient *http.Client) *OpenAIClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		temperature: cfg.Temperature,
		hasKey:      strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Complete issues a single chat completion against model.
func (o *OpenAIClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("openai complete: model required")
	}
	if strings.TrimSpace(userPrompt) == "" {
		return "", errors.New("openai complete: user prompt required")
	}
	if !o.hasKey {
		return "", errors.New("openai complete: api key required")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		msgs = append(msgs, openai.SystemMessage(s))
	}
	msgs = append(msgs, openai.UserMessage(strings.TrimSpace(userPrompt)))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &HTTPStatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &EmptyContentError{Op: "openai complete", Snippet: "<no choices>"}
	}
	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", &EmptyContentError{
			Op:           "openai complete",
			FinishReason: string(choice.FinishReason),
			Refusal:      choice.Message.Refusal,
			Snippet:      "<empty>",
		}
	}
	return content, nil
}

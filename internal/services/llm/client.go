package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 120 * time.Second
	pingPrompt         = "Reply with the single word OK."
)

// Completer produces a text completion from one named model. Implementations
// must not fall back to other models; the caller owns the hierarchy.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// Config captures the runtime settings required to talk to the model gateway.
type Config struct {
	APIKey         string
	BaseURL        string
	Referer        string
	Title          string
	TimeoutSeconds int
	Temperature    float64
}

// DefaultHTTPTimeout returns the default timeout used for LLM requests.
func DefaultHTTPTimeout() time.Duration {
	return defaultHTTPTimeout
}

// Client talks to an OpenRouter-style chat completions endpoint. The model is
// supplied per call so one client serves the whole hierarchy.
type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts sets how many times one model is tried before the
// error is returned. Values below one mean a single attempt.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff overrides the exponential backoff bounds.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.max = maxDelay
	}
}

// WithSleeper replaces the wait between attempts. Tests use it to record
// delays without sleeping.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleeper = sleeper }
}

// NewClient constructs a Client. Blank fields fall back to the OpenRouter
// endpoint and a two minute timeout.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: timeout},
		retry: defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one system/user exchange to model and returns the trimmed
// reply text.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	model = strings.TrimSpace(model)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case model == "":
		return "", errors.New("llm complete: model required")
	case userPrompt == "":
		return "", errors.New("llm complete: user prompt required")
	case c.cfg.APIKey == "":
		return "", errors.New("llm complete: api key required")
	}

	req := chatRequest{Model: model, Temperature: c.cfg.Temperature}
	if system := strings.TrimSpace(systemPrompt); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: userPrompt})
	return c.completeWithRetry(ctx, "llm complete", req)
}

// Ping asks model for a one-word reply at zero temperature. Any non-empty
// answer counts as healthy; the content itself is not inspected.
func (c *Client) Ping(ctx context.Context, model string) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm ping: api key required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("llm ping: model required")
	}
	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: pingPrompt}},
	}
	_, err := c.completeWithRetry(ctx, "llm ping", req)
	return err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
		Refusal string `json:"refusal"`
	} `json:"message"`
	// Completion-style gateways put the reply here instead of message.
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

func (r chatResponse) content() string {
	for _, choice := range r.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text
		}
	}
	return ""
}

func (c *Client) completeWithRetry(ctx context.Context, op string, req chatRequest) (string, error) {
	attempts := c.retry.maxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.completeOnce(ctx, op, req)
		if err == nil {
			return content, nil
		}
		delay, again := c.retry.next(ctx, err, attempt)
		if !again {
			return "", err
		}
		if err := c.retry.wait(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, op string, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: transport (timeout=%s): %w", op, c.http.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &MalformedResponseError{Snippet: snippet(string(body)), Err: err}
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(decoded.Error.Message))
	}
	if text := decoded.content(); text != "" {
		return text, nil
	}
	if len(decoded.Choices) == 0 {
		return "", &EmptyContentError{Op: op, Snippet: snippet(string(body))}
	}
	first := decoded.Choices[0]
	return "", &EmptyContentError{
		Op:           op,
		FinishReason: strings.TrimSpace(first.FinishReason),
		Refusal:      strings.TrimSpace(first.Message.Refusal),
		Snippet:      snippet(string(body)),
	}
}

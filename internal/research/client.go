package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"terport/internal/config"
	"terport/internal/services"
	"terport/internal/terport"
)

const (
	sparqlResultsType  = "application/sparql-results+json"
	defaultHTTPTimeout = 30 * time.Second
	defaultResultLimit = 50
	maxResponseBytes   = 4 << 20
	userAgent          = "terport/1 (+federated research)"
)

// Endpoint is one federated knowledge base.
type Endpoint struct {
	Name         string
	URL          string
	AskURL       string
	DefaultGraph string
}

// EndpointsFromConfig converts configured endpoints.
func EndpointsFromConfig(endpoints []config.Endpoint) []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, Endpoint{
			Name:         ep.Name,
			URL:          ep.URL,
			AskURL:       ep.AskURL,
			DefaultGraph: ep.DefaultGraph,
		})
	}
	return out
}

// ErrorKind classifies endpoint failures.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindTransport  ErrorKind = "transport"
	KindHTTPStatus ErrorKind = "http_status"
	KindMalformed  ErrorKind = "malformed"
	KindCanceled   ErrorKind = "canceled"
	KindNotCapable ErrorKind = "not_capable"
)

// EndpointError is the failure of one knowledge-base call. It is never fatal
// to a run.
type EndpointError struct {
	Endpoint string
	Kind     ErrorKind
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Is lets callers classify endpoint failures with the shared service
// sentinels: every EndpointError is an external-service failure and timeouts
// also match services.ErrTimeout.
func (e *EndpointError) Is(target error) bool {
	switch target {
	case services.ErrExternalService:
		return true
	case services.ErrTimeout:
		return e.Kind == KindTimeout
	default:
		return false
	}
}

// Client issues queries against knowledge-base endpoints.
type Client struct {
	httpClient  *http.Client
	resultLimit int
	policy      *bluemonday.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithResultLimit caps the rows requested by generated keyword queries.
func WithResultLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.resultLimit = limit
		}
	}
}

// NewClient constructs a knowledge-base client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		resultLimit: defaultResultLimit,
		policy:      bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// QueryGraph runs one SPARQL SELECT against ep. Rows must bind s, p and o
// (or subject, predicate and object); an optional confidence binding is
// parsed as a float.
func (c *Client) QueryGraph(ctx context.Context, ep Endpoint, query string) ([]terport.ResearchFact, error) {
	if strings.TrimSpace(ep.URL) == "" {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindNotCapable, Err: errors.New("no sparql url configured")}
	}
	form := url.Values{}
	form.Set("query", query)
	if ep.DefaultGraph != "" {
		form.Set("default-graph-uri", ep.DefaultGraph)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqlResultsType)

	body, err := c.do(ctx, ep, req)
	if err != nil {
		return nil, err
	}

	var parsed sparqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: fmt.Errorf("decode sparql results: %w", err)}
	}
	if parsed.Results == nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: errors.New("response has no results section")}
	}

	facts := make([]terport.ResearchFact, 0, len(parsed.Results.Bindings))
	for _, row := range parsed.Results.Bindings {
		subject := c.clean(firstBinding(row, "s", "subject"))
		predicate := c.clean(firstBinding(row, "p", "predicate"))
		object := c.clean(firstBinding(row, "o", "object"))
		if subject == "" || predicate == "" || object == "" {
			continue
		}
		fact := terport.ResearchFact{
			SourceEndpoint: ep.Name,
			Subject:        subject,
			Predicate:      predicate,
			Object:         object,
		}
		if raw := firstBinding(row, "confidence", "score"); raw != "" {
			if v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64); perr == nil {
				fact.Confidence = &v
			}
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// Ask runs a SPARQL ASK query and reports the boolean answer. It is used as a
// reachability probe.
func (c *Client) Ask(ctx context.Context, ep Endpoint) (bool, error) {
	if strings.TrimSpace(ep.URL) == "" {
		if strings.TrimSpace(ep.AskURL) != "" {
			_, err := c.QueryNaturalLanguage(ctx, ep, "ping")
			return err == nil, err
		}
		return false, &EndpointError{Endpoint: ep.Name, Kind: KindNotCapable, Err: errors.New("no url configured")}
	}
	form := url.Values{}
	form.Set("query", "ASK { ?s ?p ?o }")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, &EndpointError{Endpoint: ep.Name, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqlResultsType)
	body, err := c.do(ctx, ep, req)
	if err != nil {
		return false, err
	}
	var parsed struct {
		Boolean *bool `json:"boolean"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Boolean == nil {
		if err == nil {
			err = errors.New("ask response has no boolean")
		}
		return false, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: err}
	}
	return *parsed.Boolean, nil
}

// QueryNaturalLanguage asks ep a free-text question in a single request.
// Endpoints with an ask_url receive {"question": text}; others get a keyword
// SPARQL query derived from the question.
func (c *Client) QueryNaturalLanguage(ctx context.Context, ep Endpoint, text string) ([]terport.ResearchFact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: errors.New("question is empty")}
	}
	if strings.TrimSpace(ep.AskURL) == "" {
		return c.QueryGraph(ctx, ep, KeywordQuery(text, c.resultLimit))
	}

	payload, err := json.Marshal(map[string]string{"question": text})
	if err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindTransport, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.AskURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, ep, req)
	if err != nil {
		return nil, err
	}
	var parsed askResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: fmt.Errorf("decode ask response: %w", err)}
	}
	if parsed.Facts == nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: KindMalformed, Err: errors.New("ask response has no facts field")}
	}
	facts := make([]terport.ResearchFact, 0, len(*parsed.Facts))
	for _, f := range *parsed.Facts {
		fact := terport.ResearchFact{
			SourceEndpoint: ep.Name,
			Subject:        c.clean(f.Subject),
			Predicate:      c.clean(f.Predicate),
			Object:         c.clean(f.Object),
			Confidence:     f.Confidence,
		}
		if fact.Subject == "" || fact.Predicate == "" || fact.Object == "" {
			continue
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

func (c *Client) do(ctx context.Context, ep Endpoint, req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: classifyTransport(ctx, err), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &EndpointError{Endpoint: ep.Name, Kind: classifyTransport(ctx, err), Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &EndpointError{
			Endpoint: ep.Name,
			Kind:     KindHTTPStatus,
			Err:      fmt.Errorf("http %d: %s", resp.StatusCode, snippet(string(body))),
		}
	}
	return body, nil
}

func classifyTransport(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return KindTimeout
		}
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// clean strips any markup from an endpoint-supplied literal and collapses
// whitespace.
func (c *Client) clean(value string) string {
	if value == "" {
		return ""
	}
	sanitized := html.UnescapeString(c.policy.Sanitize(value))
	return strings.Join(strings.Fields(sanitized), " ")
}

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type askResponse struct {
	Facts *[]struct {
		Subject    string   `json:"subject"`
		Predicate  string   `json:"predicate"`
		Object     string   `json:"object"`
		Confidence *float64 `json:"confidence"`
	} `json:"facts"`
}

func firstBinding(row map[string]sparqlValue, names ...string) string {
	for _, name := range names {
		if v, ok := row[name]; ok && strings.TrimSpace(v.Value) != "" {
			return v.Value
		}
	}
	return ""
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}

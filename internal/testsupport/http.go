package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// Binding is one s/p/o row served by a fake SPARQL endpoint.
type Binding struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence string
}

// SPARQLServer is a fake knowledge-base endpoint answering every query with
// the same bindings.
type SPARQLServer struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns how many requests the endpoint received.
func (s *SPARQLServer) Calls() int64 {
	return s.calls.Load()
}

// NewSPARQLServer starts a fake endpoint that answers with
// application/sparql-results+json bindings. ASK queries get {"boolean":true}.
func NewSPARQLServer(t testing.TB, bindings ...Binding) *SPARQLServer {
	t.Helper()

	srv := &SPARQLServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		query := r.Form.Get("query")
		if len(query) >= 3 && (query[:3] == "ASK" || query[:3] == "ask") {
			_ = json.NewEncoder(w).Encode(map[string]any{"head": map[string]any{}, "boolean": true})
			return
		}
		rows := make([]map[string]any, 0, len(bindings))
		for _, b := range bindings {
			row := map[string]any{
				"s": map[string]string{"type": "uri", "value": b.Subject},
				"p": map[string]string{"type": "uri", "value": b.Predicate},
				"o": map[string]string{"type": "literal", "value": b.Object},
			}
			if b.Confidence != "" {
				row["confidence"] = map[string]string{"type": "literal", "value": b.Confidence}
			}
			rows = append(rows, row)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"head":    map[string]any{"vars": []string{"s", "p", "o", "confidence"}},
			"results": map[string]any{"bindings": rows},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// NewChatServer starts a fake chat-completions gateway. respond receives the
// requested model and returns the content and HTTP status to send.
func NewChatServer(t testing.TB, respond func(model string) (string, int)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, status := respond(req.Model)
		if status >= http.StatusMultipleChoices {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(content))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": content},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

package research_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"terport/internal/logging"
	"terport/internal/research"
	"terport/internal/terport"
	"terport/internal/testsupport"
)

var topic = terport.TopicSpec{
	Title:             "Pain and Inflammation",
	Category:          "wellness-effect",
	ResearchQuestions: []string{"Which terpenes are anti-inflammatory?", "What evidence exists for pain relief?"},
}

func TestAggregateToleratesTimedOutEndpoint(t *testing.T) {
	fast1 := testsupport.NewSPARQLServer(t, testsupport.Binding{Subject: "s1", Predicate: "p", Object: "o1"})
	fast2 := testsupport.NewSPARQLServer(t, testsupport.Binding{Subject: "s2", Predicate: "p", Object: "o2"})

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		http.Error(w, "too slow", http.StatusGatewayTimeout)
	}))
	defer slow.Close()
	defer close(release)

	client := research.NewClient(research.WithHTTPClient(noKeepAlive()))
	agg := research.NewAggregator(client, 200*time.Millisecond, 4, logging.NewNop())
	endpoints := []research.Endpoint{
		{Name: "fast1", URL: fast1.URL},
		{Name: "slow", URL: slow.URL},
		{Name: "fast2", URL: fast2.URL},
	}
	result := agg.Aggregate(context.Background(), topic, endpoints)

	if result.EndpointsQueried != 3 || result.EndpointsFailed != 1 {
		t.Fatalf("expected 3 queried and 1 failed, got %d/%d", result.EndpointsQueried, result.EndpointsFailed)
	}
	if len(result.Facts) == 0 {
		t.Fatal("expected facts from the successful endpoints")
	}
	for _, fact := range result.Facts {
		if fact.SourceEndpoint == "slow" {
			t.Fatalf("unexpected fact from timed-out endpoint: %+v", fact)
		}
	}
	if _, ok := result.EndpointErrors["slow"]; !ok {
		t.Fatalf("expected error recorded for slow endpoint, got %v", result.EndpointErrors)
	}
	if len(result.EndpointErrors) != 1 {
		t.Fatalf("expected only the slow endpoint to report errors, got %v", result.EndpointErrors)
	}
}

// stallingQuerier blocks until the call deadline and then fails the way the
// HTTP client does, with its own EndpointError.
type stallingQuerier struct{}

func (stallingQuerier) QueryNaturalLanguage(ctx context.Context, ep research.Endpoint, _ string) ([]terport.ResearchFact, error) {
	<-ctx.Done()
	return nil, &research.EndpointError{Endpoint: ep.Name, Kind: research.KindTransport, Err: ctx.Err()}
}

func TestAggregateTimeoutErrorIsNotWrappedTwice(t *testing.T) {
	agg := research.NewAggregator(stallingQuerier{}, 20*time.Millisecond, 2, logging.NewNop())
	result := agg.Aggregate(context.Background(), terport.TopicSpec{Title: "Linalool"}, []research.Endpoint{{Name: "slow", URL: "http://kb.invalid/sparql"}})

	msg, ok := result.EndpointErrors["slow"]
	if !ok {
		t.Fatalf("expected error recorded for slow endpoint, got %v", result.EndpointErrors)
	}
	if got := strings.Count(msg, "endpoint slow"); got != 1 {
		t.Fatalf("expected the endpoint named once, got %d in %q", got, msg)
	}
	if !strings.HasPrefix(msg, "endpoint slow: timeout: ") {
		t.Fatalf("expected timeout kind, got %q", msg)
	}
}

func TestAggregateWithNoEndpoints(t *testing.T) {
	agg := research.NewAggregator(research.NewClient(), time.Second, 2, logging.NewNop())
	result := agg.Aggregate(context.Background(), topic, nil)
	if result.EndpointsQueried != 0 || result.EndpointsFailed != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Facts == nil || len(result.Facts) != 0 {
		t.Fatalf("expected empty non-nil facts, got %v", result.Facts)
	}
	if result.Topic.Title != topic.Title {
		t.Fatalf("expected topic carried through, got %+v", result.Topic)
	}
}

type scriptedQuerier struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
	answer   func(ep research.Endpoint, question string) ([]terport.ResearchFact, error)
}

func (q *scriptedQuerier) QueryNaturalLanguage(ctx context.Context, ep research.Endpoint, text string) ([]terport.ResearchFact, error) {
	n := q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	for {
		peak := q.peak.Load()
		if n <= peak || q.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	q.mu.Lock()
	if q.calls == nil {
		q.calls = map[string]int{}
	}
	q.calls[ep.Name]++
	q.mu.Unlock()
	return q.answer(ep, text)
}

func conf(v float64) *float64 { return &v }

func TestAggregateDeduplicatesKeepingHigherConfidence(t *testing.T) {
	querier := &scriptedQuerier{answer: func(ep research.Endpoint, question string) ([]terport.ResearchFact, error) {
		if question == topic.ResearchQuestions[0] {
			return []terport.ResearchFact{
				{Subject: "Caryophyllene", Predicate: "binds", Object: "CB2", Confidence: conf(0.4)},
				{Subject: "Myrcene", Predicate: "reduces", Object: "inflammation"},
			}, nil
		}
		return []terport.ResearchFact{
			{Subject: "Caryophyllene", Predicate: "binds", Object: "CB2", Confidence: conf(0.8)},
			{Subject: "Myrcene", Predicate: "reduces", Object: "inflammation", Confidence: conf(0.3)},
		}, nil
	}}
	agg := research.NewAggregator(querier, time.Second, 2, logging.NewNop())
	result := agg.Aggregate(context.Background(), topic, []research.Endpoint{{Name: "a"}, {Name: "b"}})

	if len(result.Facts) != 4 {
		t.Fatalf("expected 2 facts per endpoint after dedupe, got %d: %+v", len(result.Facts), result.Facts)
	}
	type row struct {
		Source, Subject string
		Confidence      float64
	}
	var got []row
	for _, f := range result.Facts {
		got = append(got, row{f.SourceEndpoint, f.Subject, f.ConfidenceOr(-1)})
	}
	want := []row{
		{"a", "Caryophyllene", 0.8},
		{"a", "Myrcene", 0.3},
		{"b", "Caryophyllene", 0.8},
		{"b", "Myrcene", 0.3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged facts mismatch (-want +got):\n%s", diff)
	}
	if querier.calls["a"] != 2 || querier.calls["b"] != 2 {
		t.Fatalf("expected one call per question per endpoint, got %v", querier.calls)
	}
	if querier.peak.Load() > 2 {
		t.Fatalf("concurrency limit exceeded: %d", querier.peak.Load())
	}
}

func TestAggregatePartialEndpointFailureStillCountsAsQueried(t *testing.T) {
	querier := &scriptedQuerier{answer: func(ep research.Endpoint, question string) ([]terport.ResearchFact, error) {
		if ep.Name == "flaky" && question == topic.ResearchQuestions[1] {
			return nil, &research.EndpointError{Endpoint: ep.Name, Kind: research.KindHTTPStatus, Err: errors.New("http 502")}
		}
		return []terport.ResearchFact{{Subject: ep.Name, Predicate: "answers", Object: question}}, nil
	}}
	agg := research.NewAggregator(querier, time.Second, 0, logging.NewNop())
	result := agg.Aggregate(context.Background(), topic, []research.Endpoint{{Name: "flaky"}, {Name: "steady"}})

	if result.EndpointsFailed != 0 {
		t.Fatalf("endpoint with a successful call must not count as failed, got %d", result.EndpointsFailed)
	}
	if _, ok := result.EndpointErrors["flaky"]; !ok {
		t.Fatalf("expected flaky error recorded, got %v", result.EndpointErrors)
	}
	if len(result.Facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(result.Facts))
	}
}

func TestAggregateAllEndpointsFailing(t *testing.T) {
	querier := &scriptedQuerier{answer: func(ep research.Endpoint, question string) ([]terport.ResearchFact, error) {
		return nil, errors.New("connection refused")
	}}
	agg := research.NewAggregator(querier, time.Second, 4, logging.NewNop())
	result := agg.Aggregate(context.Background(), topic, []research.Endpoint{{Name: "a"}, {Name: "b"}})
	if result.EndpointsFailed != result.EndpointsQueried || result.EndpointsQueried != 2 {
		t.Fatalf("expected all endpoints failed, got %d/%d", result.EndpointsFailed, result.EndpointsQueried)
	}
	if len(result.Facts) != 0 {
		t.Fatalf("expected no facts, got %v", result.Facts)
	}
}

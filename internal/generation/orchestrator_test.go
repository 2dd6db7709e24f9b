package generation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"terport/internal/generation"
	"terport/internal/logging"
	"terport/internal/research"
	"terport/internal/store"
	"terport/internal/synthesis"
	"terport/internal/terport"
	"terport/internal/testsupport"
	"terport/internal/topics"
	"terport/internal/version"
)

var (
	topicMyrcene = terport.TopicSpec{
		Title:             "Myrcene",
		Category:          "terpene-profile",
		ResearchQuestions: []string{"Where does myrcene occur?"},
	}
	topicPain = terport.TopicSpec{
		Title:             "Pain and Inflammation",
		Category:          "wellness-effect",
		ResearchQuestions: []string{"Which terpenes are anti-inflammatory?"},
	}
)

type staticTopics []terport.TopicSpec

func (s staticTopics) Topics(terport.Trigger, string) []terport.TopicSpec {
	return append([]terport.TopicSpec(nil), s...)
}

// fakeResearch returns one fact for topics listed in withFacts and an
// all-failed aggregation for everything else.
type fakeResearch struct {
	withFacts map[string]bool
}

func (f fakeResearch) Aggregate(_ context.Context, topic terport.TopicSpec, _ []research.Endpoint) terport.AggregationResult {
	if f.withFacts[topic.Title] {
		return terport.AggregationResult{
			Topic:            topic,
			Facts:            []terport.ResearchFact{{SourceEndpoint: "kb", Subject: topic.Title, Predicate: "is", Object: "a terpene"}},
			EndpointsQueried: 2,
		}
	}
	return terport.AggregationResult{
		Topic:            topic,
		Facts:            []terport.ResearchFact{},
		EndpointsQueried: 2,
		EndpointsFailed:  2,
		EndpointErrors:   map[string]string{"kb": "timeout", "kb2": "http 502"},
	}
}

// topicCompleter fails every model for topics listed in failing.
type topicCompleter struct {
	mu      sync.Mutex
	failing map[string]bool
	prompts []string
}

func (c *topicCompleter) Complete(_ context.Context, model, _, user string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, user)
	c.mu.Unlock()
	for title := range c.failing {
		if strings.Contains(user, title) {
			return "", errors.New("upstream unavailable")
		}
	}
	title := strings.SplitN(strings.TrimPrefix(user, "# Topic\n"), "\n", 2)[0]
	return fmt.Sprintf("# %s\n\nA generated overview of %s written by %s for the reference library.", title, title, model), nil
}

type harness struct {
	store     *store.Store
	tracker   *version.Tracker
	completer *topicCompleter
	orch      *generation.Orchestrator
}

func newHarness(t *testing.T, topics generation.TopicSource, withFacts map[string]bool, failing map[string]bool) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tracker := version.NewTracker(st, logging.NewNop())
	completer := &topicCompleter{failing: failing}
	orch := generation.New(generation.Dependencies{
		Gate:      tracker,
		Topics:    topics,
		Research:  fakeResearch{withFacts: withFacts},
		Writer:    synthesis.New(completer, synthesis.Options{MinBodyChars: 20}, logging.NewNop()),
		Documents: st,
		History:   st,
		Hierarchy: []string{"model-a", "model-b", "model-c"},
		Logger:    logging.NewNop(),
	})
	return &harness{store: st, tracker: tracker, completer: completer, orch: orch}
}

func TestRunCompletesWithEmptyEvidenceTopic(t *testing.T) {
	h := newHarness(t, staticTopics{topicMyrcene, topicPain}, map[string]bool{"Myrcene": true}, nil)
	ctx := context.Background()

	rec, err := h.orch.Run(ctx, terport.TriggerInitial, "1.0")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.Status != terport.RunStatusCompleted || rec.TopicsSucceeded != 2 || rec.TopicsFailed != 0 || rec.TopicsAttempted != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Finished() {
		t.Fatal("expected finished record")
	}

	if len(h.completer.prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(h.completer.prompts))
	}
	if !strings.Contains(h.completer.prompts[0], "Facts considered (1)") {
		t.Fatalf("expected facts section for first topic:\n%s", h.completer.prompts[0])
	}
	if strings.Contains(h.completer.prompts[1], "Facts considered") {
		t.Fatalf("empty-evidence prompt must omit the facts section:\n%s", h.completer.prompts[1])
	}

	if last, ok := h.tracker.LastVersion(ctx); !ok || last != "1.0" {
		t.Fatalf("expected version gate at 1.0, got %q (%v)", last, ok)
	}

	stored, err := h.store.GetRun(ctx, rec.RunID)
	if err != nil || stored == nil {
		t.Fatalf("GetRun: %v %v", stored, err)
	}
	if stored.Status != terport.RunStatusCompleted || stored.TopicsSucceeded != 2 {
		t.Fatalf("unexpected persisted record %+v", stored)
	}

	docs, err := h.store.ListDocuments(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	count, err := h.store.DocumentCount(ctx, "wellness-effect")
	if err != nil || count != 1 {
		t.Fatalf("expected 1 wellness-effect document, got %d (%v)", count, err)
	}
	for _, doc := range docs {
		if doc.Meta[store.MetaRunID] != rec.RunID || doc.Meta[store.MetaModel] != "model-a" {
			t.Fatalf("unexpected metadata %v", doc.Meta)
		}
	}

	outcomes, err := h.store.TopicOutcomes(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("TopicOutcomes: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].Title != "Myrcene" || outcomes[1].Title != "Pain and Inflammation" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if outcomes[1].FactsConsidered != 0 || len(outcomes[1].EndpointErrors) != 2 {
		t.Fatalf("expected empty-evidence diagnostics on second topic, got %+v", outcomes[1])
	}
}

func TestRunCompletesWithErrorsAndAdvancesVersion(t *testing.T) {
	h := newHarness(t, staticTopics{topicMyrcene, topicPain}, map[string]bool{"Myrcene": true}, map[string]bool{"Pain and Inflammation": true})
	ctx := context.Background()

	rec, err := h.orch.Run(ctx, terport.TriggerInitial, "1.0")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.Status != terport.RunStatusCompletedWithErrors || rec.TopicsSucceeded != 1 || rec.TopicsFailed != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if last, ok := h.tracker.LastVersion(ctx); !ok || last != "1.0" {
		t.Fatalf("expected version gate advanced on partial success, got %q (%v)", last, ok)
	}

	outcomes, err := h.store.TopicOutcomes(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("TopicOutcomes: %v", err)
	}
	failed := outcomes[1]
	if failed.Status != terport.TopicFailed || len(failed.Attempts) != 3 {
		t.Fatalf("expected failed topic with 3 attempts, got %+v", failed)
	}
	if !strings.Contains(failed.ErrorMessage, "all models exhausted") {
		t.Fatalf("unexpected failure message %q", failed.ErrorMessage)
	}
}

func TestRunIsNoOpWhenVersionAlreadyGenerated(t *testing.T) {
	h := newHarness(t, staticTopics{topicMyrcene}, nil, nil)
	ctx := context.Background()

	if _, err := h.orch.Run(ctx, terport.TriggerInitial, "1.0"); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	rec, err := h.orch.Run(ctx, terport.TriggerInitial, "1.0")
	if err != nil || rec != nil {
		t.Fatalf("expected no-op, got %+v (%v)", rec, err)
	}
	rec, err = h.orch.Run(ctx, terport.TriggerVersionUpdate, "1.0")
	if err != nil || rec != nil {
		t.Fatalf("expected no-op for unchanged version, got %+v (%v)", rec, err)
	}
	runs, err := h.store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("no-op triggers must not appear in history, got %d runs", len(runs))
	}

	rec, err = h.orch.Run(ctx, terport.TriggerVersionUpdate, "3.9")
	if err != nil || rec == nil || rec.Status != terport.RunStatusCompleted {
		t.Fatalf("expected version update run, got %+v (%v)", rec, err)
	}
}

func TestVersionUpdateRunsOnlyCrossedReleases(t *testing.T) {
	cases := []struct {
		name     string
		last     string
		current  string
		wantDocs int
	}{
		{name: "patch inside release", last: "3.9.0", current: "3.9.1", wantDocs: 0},
		{name: "skipped release", last: "3.8", current: "4.0", wantDocs: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry, err := topics.New(tc.current)
			if err != nil {
				t.Fatalf("topics.New: %v", err)
			}
			h := newHarness(t, registry, nil, nil)
			ctx := context.Background()
			if err := h.tracker.RecordCompletion(ctx, tc.last); err != nil {
				t.Fatalf("RecordCompletion: %v", err)
			}

			rec, err := h.orch.Run(ctx, terport.TriggerVersionUpdate, tc.current)
			if err != nil || rec == nil {
				t.Fatalf("Run: %+v (%v)", rec, err)
			}
			if rec.Status != terport.RunStatusCompleted || rec.TopicsAttempted != tc.wantDocs {
				t.Fatalf("unexpected record %+v", rec)
			}
			count, err := h.store.DocumentCount(ctx, "wellness-effect")
			if err != nil {
				t.Fatalf("DocumentCount: %v", err)
			}
			if count != tc.wantDocs {
				t.Fatalf("expected %d wellness documents, got %d", tc.wantDocs, count)
			}
			if tc.wantDocs > 0 {
				docs, err := h.store.ListDocuments(ctx, "wellness-effect", 10)
				if err != nil || len(docs) != 1 || docs[0].Title != "Pain and Inflammation" {
					t.Fatalf("expected Pain and Inflammation document, got %+v (%v)", docs, err)
				}
			}
			if last, _ := h.tracker.LastVersion(ctx); last != tc.current {
				t.Fatalf("expected version gate at %s, got %q", tc.current, last)
			}
		})
	}
}

func TestRunFailsWhenEveryTopicFails(t *testing.T) {
	h := newHarness(t, staticTopics{topicMyrcene, topicPain}, nil, map[string]bool{"Myrcene": true, "Pain and Inflammation": true})
	ctx := context.Background()

	rec, err := h.orch.Run(ctx, terport.TriggerInitial, "1.0")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.Status != terport.RunStatusFailed || rec.TopicsFailed != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, ok := h.tracker.LastVersion(ctx); ok {
		t.Fatal("failed run must not advance the version gate")
	}
	if !h.tracker.ShouldGenerate(ctx, "1.0", terport.TriggerInitial) {
		t.Fatal("failed run must be retried on the next trigger")
	}
}

func TestRunWithNoTopicsCompletes(t *testing.T) {
	h := newHarness(t, staticTopics{}, nil, nil)
	rec, err := h.orch.Run(context.Background(), terport.TriggerVersionUpdate, "2.0")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.Status != terport.RunStatusCompleted || rec.TopicsAttempted != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if last, _ := h.tracker.LastVersion(context.Background()); last != "2.0" {
		t.Fatalf("expected version gate at 2.0, got %q", last)
	}
}

type unreachableDocuments struct{}

func (unreachableDocuments) CreateDocument(context.Context, string, string, map[string]string) (int64, error) {
	return 0, fmt.Errorf("%w: insert document: database is closed", store.ErrUnavailable)
}

type rejectingDocuments struct {
	inner  generation.DocumentStore
	reject string
}

func (r rejectingDocuments) CreateDocument(ctx context.Context, title, body string, meta map[string]string) (int64, error) {
	if title == r.reject {
		return 0, errors.New("insert document: constraint failed")
	}
	return r.inner.CreateDocument(ctx, title, body, meta)
}

func TestRunFailsWhenStorageUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tracker := version.NewTracker(st, logging.NewNop())
	orch := generation.New(generation.Dependencies{
		Gate:      tracker,
		Topics:    staticTopics{topicMyrcene, topicPain},
		Research:  fakeResearch{},
		Writer:    synthesis.New(&topicCompleter{}, synthesis.Options{MinBodyChars: 20}, logging.NewNop()),
		Documents: unreachableDocuments{},
		History:   st,
		Hierarchy: []string{"model-a"},
		Logger:    logging.NewNop(),
	})

	rec, err := orch.Run(context.Background(), terport.TriggerInitial, "1.0")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if rec == nil || rec.Status != terport.RunStatusFailed {
		t.Fatalf("expected failed record, got %+v", rec)
	}
	if rec.TopicsSucceeded+rec.TopicsFailed != 0 {
		t.Fatalf("run should abort on the first topic, got %+v", rec)
	}
	if _, ok := tracker.LastVersion(context.Background()); ok {
		t.Fatal("failed run must not advance the version gate")
	}
	stored, err := st.GetRun(context.Background(), rec.RunID)
	if err != nil || stored == nil || stored.Status != terport.RunStatusFailed || !stored.Finished() {
		t.Fatalf("expected sealed failed record, got %+v (%v)", stored, err)
	}
}

func TestRunContinuesAfterDocumentWriteFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	orch := generation.New(generation.Dependencies{
		Gate:      version.NewTracker(st, logging.NewNop()),
		Topics:    staticTopics{topicMyrcene, topicPain},
		Research:  fakeResearch{},
		Writer:    synthesis.New(&topicCompleter{}, synthesis.Options{MinBodyChars: 20}, logging.NewNop()),
		Documents: rejectingDocuments{inner: st, reject: "Myrcene"},
		History:   st,
		Hierarchy: []string{"model-a"},
		Logger:    logging.NewNop(),
	})
	rec, err := orch.Run(context.Background(), terport.TriggerManual, "1.0")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.Status != terport.RunStatusCompletedWithErrors || rec.TopicsFailed != 1 || rec.TopicsSucceeded != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

type brokenGate struct{}

func (brokenGate) ShouldGenerate(context.Context, string, terport.Trigger) bool { return true }
func (brokenGate) LastVersion(context.Context) (string, bool)                   { return "", false }
func (brokenGate) RecordCompletion(context.Context, string) error {
	return fmt.Errorf("%w: version: record completion", store.ErrUnavailable)
}

func TestRunFailsWhenVersionWriteFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	orch := generation.New(generation.Dependencies{
		Gate:      brokenGate{},
		Topics:    staticTopics{topicMyrcene},
		Research:  fakeResearch{},
		Writer:    synthesis.New(&topicCompleter{}, synthesis.Options{MinBodyChars: 20}, logging.NewNop()),
		Documents: st,
		History:   st,
		Hierarchy: []string{"model-a"},
		Logger:    logging.NewNop(),
	})
	rec, err := orch.Run(context.Background(), terport.TriggerManual, "1.0")
	if err == nil {
		t.Fatal("expected run-level error")
	}
	if rec.Status != terport.RunStatusFailed || rec.TopicsSucceeded != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"terport/internal/logging"
	"terport/internal/terport"
)

const defaultConcurrency = 8

// Querier answers one free-text question from one endpoint.
type Querier interface {
	QueryNaturalLanguage(ctx context.Context, ep Endpoint, text string) ([]terport.ResearchFact, error)
}

// Aggregator fans research questions out across endpoints and merges the
// answers into one AggregationResult.
type Aggregator struct {
	querier     Querier
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewAggregator constructs an Aggregator. timeout bounds every individual
// call; concurrency bounds in-flight calls (0 selects a default).
func NewAggregator(querier Querier, timeout time.Duration, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Aggregator{
		querier:     querier,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "aggregator"),
	}
}

type callResult struct {
	facts []terport.ResearchFact
	err   error
}

// Aggregate issues one natural-language query per research question per
// endpoint, waits for every call to finish or time out, and merges the
// results. Endpoint failures are recorded in the result, never returned.
func (a *Aggregator) Aggregate(ctx context.Context, topic terport.TopicSpec, endpoints []Endpoint) terport.AggregationResult {
	result := terport.AggregationResult{
		Topic:            topic,
		Facts:            []terport.ResearchFact{},
		EndpointsQueried: len(endpoints),
	}
	if len(endpoints) == 0 {
		return result
	}

	questions := topic.ResearchQuestions
	if len(questions) == 0 {
		questions = []string{topic.Title}
	}

	// One slot per (endpoint, question) keeps the merge order independent of
	// completion order.
	slots := make([][]callResult, len(endpoints))
	for i := range slots {
		slots[i] = make([]callResult, len(questions))
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for ei, ep := range endpoints {
		for qi, question := range questions {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(ctx, a.timeout)
				defer cancel()
				facts, err := a.querier.QueryNaturalLanguage(callCtx, ep, question)
				if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
					err = asTimeout(ep.Name, err)
				}
				slots[ei][qi] = callResult{facts: facts, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	merger := newFactMerger()
	for ei, ep := range endpoints {
		successes := 0
		var firstErr error
		for _, call := range slots[ei] {
			if call.err != nil {
				if firstErr == nil {
					firstErr = call.err
				}
				continue
			}
			successes++
			for _, fact := range call.facts {
				fact.SourceEndpoint = ep.Name
				merger.add(fact)
			}
		}
		if firstErr != nil {
			if result.EndpointErrors == nil {
				result.EndpointErrors = make(map[string]string)
			}
			result.EndpointErrors[ep.Name] = firstErr.Error()
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "knowledge-base endpoint failed", "endpoint_failure",
				logging.String(logging.FieldEndpoint, ep.Name),
				logging.String("kind", string(kindOf(firstErr))),
				logging.Int("successful_calls", successes),
				logging.Error(firstErr),
				logging.String(logging.FieldErrorHint, "check the endpoint url and its availability"),
				logging.String(logging.FieldImpact, "topic is synthesized with fewer facts"),
			)
		}
		if successes == 0 {
			result.EndpointsFailed++
		}
	}
	result.Facts = merger.facts

	logging.WithContext(ctx, a.logger).Info("research aggregated",
		logging.String(logging.FieldTopic, topic.Title),
		logging.Int("endpoints_queried", result.EndpointsQueried),
		logging.Int("endpoints_failed", result.EndpointsFailed),
		logging.Int("facts", len(result.Facts)),
	)
	return result
}

func kindOf(err error) ErrorKind {
	var epErr *EndpointError
	if errors.As(err, &epErr) {
		return epErr.Kind
	}
	return KindTransport
}

type factKey struct {
	subject, predicate, object, source string
}

type factMerger struct {
	index map[factKey]int
	facts []terport.ResearchFact
}

func newFactMerger() *factMerger {
	return &factMerger{index: map[factKey]int{}, facts: []terport.ResearchFact{}}
}

// add appends fact unless an identical (subject, predicate, object, source)
// fact exists, in which case the higher confidence is kept.
func (m *factMerger) add(fact terport.ResearchFact) {
	key := factKey{
		subject:   strings.TrimSpace(fact.Subject),
		predicate: strings.TrimSpace(fact.Predicate),
		object:    strings.TrimSpace(fact.Object),
		source:    fact.SourceEndpoint,
	}
	if i, ok := m.index[key]; ok {
		existing := &m.facts[i]
		switch {
		case fact.Confidence == nil:
		case existing.Confidence == nil || *fact.Confidence > *existing.Confidence:
			v := *fact.Confidence
			existing.Confidence = &v
		}
		return
	}
	if fact.Confidence != nil {
		v := *fact.Confidence
		fact.Confidence = &v
	}
	m.index[key] = len(m.facts)
	m.facts = append(m.facts, fact)
}

// asTimeout marks err as a per-call timeout for endpoint. An EndpointError
// from the client is re-kinded in a copy rather than wrapped again.
func asTimeout(endpoint string, err error) error {
	var epErr *EndpointError
	if errors.As(err, &epErr) {
		timedOut := *epErr
		timedOut.Kind = KindTimeout
		return &timedOut
	}
	return &EndpointError{Endpoint: endpoint, Kind: KindTimeout, Err: err}
}

package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"terport/internal/logging"
	"terport/internal/services"
	"terport/internal/services/llm"
	"terport/internal/terport"
)

// ErrAllModelsExhausted is matched by every *ExhaustedError.
var ErrAllModelsExhausted = errors.New("all models exhausted")

// ExhaustedError reports a topic for which no model produced a usable body.
type ExhaustedError struct {
	Topic    string
	Attempts []terport.ModelAttempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", attempt.ModelName, attempt.ErrorKind))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("synthesize %q: %v: empty model hierarchy", e.Topic, ErrAllModelsExhausted)
	}
	return fmt.Sprintf("synthesize %q: %v (%s)", e.Topic, ErrAllModelsExhausted, strings.Join(parts, ", "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllModelsExhausted
}

// Options tunes prompt size and output validation.
type Options struct {
	MaxFacts     int
	MinBodyChars int
}

// Synthesizer produces documents through a Completer.
type Synthesizer struct {
	completer  llm.Completer
	normalizer *Normalizer
	maxFacts   int
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a Synthesizer.
func New(completer llm.Completer, opts Options, logger *slog.Logger) *Synthesizer {
	maxFacts := opts.MaxFacts
	if maxFacts <= 0 {
		maxFacts = defaultMaxFacts
	}
	return &Synthesizer{
		completer:  completer,
		normalizer: NewNormalizer(opts.MinBodyChars),
		maxFacts:   maxFacts,
		logger:     logging.NewComponentLogger(logger, "synthesizer"),
		now:        time.Now,
	}
}

// Synthesize writes one document for topic, trying each model of hierarchy
// in order until one returns a valid body.
func (s *Synthesizer) Synthesize(ctx context.Context, topic terport.TopicSpec, aggregation terport.AggregationResult, hierarchy []string) (*terport.GeneratedDocument, error) {
	if s == nil || s.completer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "synthesize", "no completer configured", nil)
	}
	prompt := BuildPrompt(topic, aggregation.Facts, s.maxFacts)
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldTopic, topic.Title))

	attempts := make([]terport.ModelAttempt, 0, len(hierarchy))
	for _, model := range hierarchy {
		model = strings.TrimSpace(model)
		if model == "" {
			// A blank slot still costs one attempt so the record lines up
			// with the configured hierarchy.
			attempts = append(attempts, terport.ModelAttempt{
				ErrorKind: terport.ErrorKindNoModel,
				Error:     "model name is blank",
			})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("synthesize %q: %w", topic.Title, err)
		}

		started := time.Now()
		raw, err := s.completer.Complete(ctx, model, prompt.System, prompt.User)
		var body, headline string
		if err == nil {
			body, headline, err = s.normalizer.Normalize(raw)
		}
		attempt := terport.ModelAttempt{
			ModelName: model,
			Succeeded: err == nil,
			Latency:   time.Since(started),
		}
		if err != nil {
			attempt.ErrorKind = attemptKind(err)
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("synthesize %q: %w", topic.Title, ctx.Err())
			}
			logging.WarnWithContext(logger, "model attempt failed", "model_attempt_failed",
				logging.String(logging.FieldModel, model),
				logging.String("error_kind", string(attempt.ErrorKind)),
				logging.Duration("latency", attempt.Latency),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "falling back to the next model in the hierarchy"),
			)
			continue
		}
		attempts = append(attempts, attempt)

		logger.Info("document synthesized",
			logging.String(logging.FieldModel, model),
			logging.Int("attempts", len(attempts)),
			logging.Int("facts_considered", prompt.FactsConsidered),
			logging.Duration("latency", attempt.Latency),
		)
		return &terport.GeneratedDocument{
			TopicTitle:      topic.Title,
			Category:        topic.Category,
			Headline:        headline,
			Body:            body,
			ModelUsed:       model,
			Attempts:        attempts,
			FactsConsidered: prompt.FactsConsidered,
			GeneratedAt:     s.now().UTC(),
		}, nil
	}

	return nil, &ExhaustedError{Topic: topic.Title, Attempts: attempts}
}

func attemptKind(err error) terport.ErrorKind {
	if errors.Is(err, ErrMalformedBody) {
		return terport.ErrorKindMalformed
	}
	return llm.Classify(err)
}

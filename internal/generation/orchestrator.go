package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"terport/internal/logging"
	"terport/internal/notifications"
	"terport/internal/research"
	"terport/internal/services"
	"terport/internal/store"
	"terport/internal/synthesis"
	"terport/internal/terport"
)

// VersionGate decides whether a trigger needs work and records completed
// versions.
type VersionGate interface {
	ShouldGenerate(ctx context.Context, currentVersion string, trigger terport.Trigger) bool
	LastVersion(ctx context.Context) (string, bool)
	RecordCompletion(ctx context.Context, currentVersion string) error
}

// TopicSource lists the topics a trigger covers. lastVersion is the version
// the previous successful run recorded, empty when there is none.
type TopicSource interface {
	Topics(trigger terport.Trigger, lastVersion string) []terport.TopicSpec
}

// Researcher gathers facts for one topic.
type Researcher interface {
	Aggregate(ctx context.Context, topic terport.TopicSpec, endpoints []research.Endpoint) terport.AggregationResult
}

// Writer synthesizes one document.
type Writer interface {
	Synthesize(ctx context.Context, topic terport.TopicSpec, aggregation terport.AggregationResult, hierarchy []string) (*terport.GeneratedDocument, error)
}

// DocumentStore persists generated documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, title, body string, meta map[string]string) (int64, error)
}

// History persists generation records and per-topic outcomes.
type History interface {
	CreateRun(ctx context.Context, rec *terport.GenerationRecord) error
	UpdateRun(ctx context.Context, rec *terport.GenerationRecord) error
	RecordTopicOutcome(ctx context.Context, outcome terport.TopicOutcome) error
}

// Dependencies wires an Orchestrator.
type Dependencies struct {
	Gate      VersionGate
	Topics    TopicSource
	Research  Researcher
	Endpoints []research.Endpoint
	Writer    Writer
	Documents DocumentStore
	History   History
	Notifier  notifications.Service
	Hierarchy []string
	Logger    *slog.Logger
}

// Orchestrator drives generation runs. Callers must not run two at once; the
// scheduler provides that exclusion.
type Orchestrator struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New constructs an Orchestrator.
func New(deps Dependencies) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	return &Orchestrator{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "orchestrator"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run executes one generation run for trigger at version. It returns a nil
// record when the version gate reports no work. A non-nil error means the
// run ended Failed because of a run-level fault; per-topic failures are only
// visible in the record's counters and status.
func (o *Orchestrator) Run(ctx context.Context, trigger terport.Trigger, version string) (*terport.GenerationRecord, error) {
	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldTrigger, string(trigger)))

	if !o.deps.Gate.ShouldGenerate(ctx, version, trigger) {
		logger.Debug("generation not needed", logging.String("version", version))
		return nil, nil
	}
	lastVersion, _ := o.deps.Gate.LastVersion(ctx)

	rec := &terport.GenerationRecord{
		RunID:         o.newID(),
		Trigger:       trigger,
		PluginVersion: version,
		StartedAt:     o.now().UTC(),
		Status:        terport.RunStatusRunning,
	}
	ctx = services.WithRunID(ctx, rec.RunID)
	logger = logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldTrigger, string(trigger)))

	if err := o.deps.History.CreateRun(ctx, rec); err != nil {
		err = services.Wrap(services.ErrStorage, "orchestrator", "create run", "", err)
		logging.ErrorWithContext(logger, "generation run could not start", "run_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database file and permissions"),
		)
		o.notifyError(ctx, logger, err)
		return nil, err
	}

	topics := o.deps.Topics.Topics(trigger, lastVersion)
	rec.TopicsAttempted = len(topics)
	logger.Info("generation run started",
		logging.String("version", version),
		logging.String("last_version", lastVersion),
		logging.Int("topics", len(topics)),
		logging.Int("models", len(o.deps.Hierarchy)),
		logging.Int("endpoints", len(o.deps.Endpoints)),
	)
	if err := o.deps.History.UpdateRun(ctx, rec); err != nil {
		return o.fail(ctx, logger, rec, services.Wrap(services.ErrStorage, "orchestrator", "update run", "", err))
	}

	for i, topic := range topics {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, logger, rec, err)
		}
		succeeded, err := o.runTopic(ctx, rec, i, topic)
		if err != nil {
			return o.fail(ctx, logger, rec, err)
		}
		if succeeded {
			rec.TopicsSucceeded++
		} else {
			rec.TopicsFailed++
		}
		if err := o.deps.History.UpdateRun(ctx, rec); err != nil {
			return o.fail(ctx, logger, rec, services.Wrap(services.ErrStorage, "orchestrator", "update run", "", err))
		}
	}

	rec.Status = finalStatus(rec)
	if rec.Status == terport.RunStatusFailed {
		rec.ErrorMessage = fmt.Sprintf("all %d topics failed", rec.TopicsFailed)
	}
	if rec.Status.AdvancesVersion() {
		if err := o.deps.Gate.RecordCompletion(ctx, version); err != nil {
			return o.fail(ctx, logger, rec, err)
		}
	}

	finished := o.now().UTC()
	rec.FinishedAt = &finished
	if err := o.deps.History.UpdateRun(ctx, rec); err != nil {
		err = services.Wrap(services.ErrStorage, "orchestrator", "seal run", "", err)
		logging.ErrorWithContext(logger, "generation run could not be sealed", "run_seal_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database file and permissions"),
		)
		return rec, err
	}

	logger.Info("generation run finished",
		logging.String("status", string(rec.Status)),
		logging.Int("topics_succeeded", rec.TopicsSucceeded),
		logging.Int("topics_failed", rec.TopicsFailed),
		logging.Duration("duration", finished.Sub(rec.StartedAt)),
	)
	o.notifyOutcome(ctx, logger, rec, nil)
	return rec, nil
}

// runTopic processes one topic. It reports whether the topic produced a
// document; a non-nil error is run-fatal.
func (o *Orchestrator) runTopic(ctx context.Context, rec *terport.GenerationRecord, position int, topic terport.TopicSpec) (bool, error) {
	ctx = services.WithTopic(ctx, topic.Title)
	logger := logging.WithContext(ctx, o.logger)

	outcome := terport.TopicOutcome{
		RunID:    rec.RunID,
		Position: position,
		Title:    topic.Title,
		Category: topic.Category,
		Status:   terport.TopicFailed,
	}

	aggregation := o.deps.Research.Aggregate(ctx, topic, o.deps.Endpoints)
	outcome.EndpointErrors = aggregation.EndpointErrors

	doc, err := o.deps.Writer.Synthesize(ctx, topic, aggregation, o.deps.Hierarchy)
	if err != nil {
		if services.RunFatal(err) {
			return false, err
		}
		var exhausted *synthesis.ExhaustedError
		if errors.As(err, &exhausted) {
			outcome.Attempts = exhausted.Attempts
		}
		outcome.ErrorMessage = err.Error()
		logging.WarnWithContext(logger, "topic synthesis failed", "topic_failed",
			logging.Error(err),
			logging.Int("attempts", len(outcome.Attempts)),
			logging.String(logging.FieldErrorHint, "check model availability or re-run with trigger manual"),
			logging.String(logging.FieldImpact, "topic is missing from this run"),
		)
		return false, o.recordOutcome(ctx, outcome)
	}

	outcome.ModelUsed = doc.ModelUsed
	outcome.Attempts = doc.Attempts
	outcome.FactsConsidered = doc.FactsConsidered

	id, err := o.deps.Documents.CreateDocument(ctx, topic.Title, doc.Body, documentMeta(rec, topic, doc))
	if err != nil {
		if services.RunFatal(err) {
			return false, err
		}
		outcome.ErrorMessage = fmt.Sprintf("persist document: %v", err)
		logging.WarnWithContext(logger, "document write failed", "document_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the document store for constraint errors"),
			logging.String(logging.FieldImpact, "topic is missing from this run"),
		)
		return false, o.recordOutcome(ctx, outcome)
	}

	outcome.Status = terport.TopicSucceeded
	outcome.DocumentID = id
	logger.Info("topic generated",
		logging.Int64("document_id", id),
		logging.String(logging.FieldModel, doc.ModelUsed),
		logging.Int("facts_considered", doc.FactsConsidered),
		logging.Int("endpoints_failed", aggregation.EndpointsFailed),
	)
	return true, o.recordOutcome(ctx, outcome)
}

func (o *Orchestrator) recordOutcome(ctx context.Context, outcome terport.TopicOutcome) error {
	outcome.RecordedAt = o.now().UTC()
	if err := o.deps.History.RecordTopicOutcome(ctx, outcome); err != nil {
		return services.Wrap(services.ErrStorage, "orchestrator", "record topic outcome", outcome.Title, err)
	}
	return nil
}

// fail seals rec as Failed after a run-level fault and returns cause.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, rec *terport.GenerationRecord, cause error) (*terport.GenerationRecord, error) {
	rec.Status = terport.RunStatusFailed
	rec.ErrorMessage = cause.Error()
	finished := o.now().UTC()
	rec.FinishedAt = &finished

	logging.ErrorWithContext(logger, "generation run failed", "run_failed",
		logging.Error(cause),
		logging.Int("topics_succeeded", rec.TopicsSucceeded),
		logging.Int("topics_failed", rec.TopicsFailed),
		logging.String(logging.FieldErrorHint, "resolve the error; the next trigger retries the whole run"),
	)

	// The caller's context may already be done; the seal still has to land.
	sealCtx := context.WithoutCancel(ctx)
	if err := o.deps.History.UpdateRun(sealCtx, rec); err != nil {
		logging.WarnWithContext(logger, "failed run could not be sealed", "run_seal_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history shows the run as running"),
		)
	}
	o.notifyOutcome(sealCtx, logger, rec, cause)
	return rec, cause
}

func (o *Orchestrator) notifyOutcome(ctx context.Context, logger *slog.Logger, rec *terport.GenerationRecord, cause error) {
	var err error
	if rec.Status == terport.RunStatusFailed {
		err = o.deps.Notifier.NotifyRunFailed(ctx, *rec, cause)
	} else {
		err = o.deps.Notifier.NotifyRunCompleted(ctx, *rec)
	}
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ntfy topic url"),
		)
	}
}

func (o *Orchestrator) notifyError(ctx context.Context, logger *slog.Logger, cause error) {
	if err := o.deps.Notifier.NotifyError(ctx, cause, "generation run"); err != nil {
		logging.WarnWithContext(logger, "error notification failed", "notification_failed", logging.Error(err))
	}
}

func finalStatus(rec *terport.GenerationRecord) terport.RunStatus {
	switch {
	case rec.TopicsFailed == 0:
		return terport.RunStatusCompleted
	case rec.TopicsSucceeded == 0:
		return terport.RunStatusFailed
	default:
		return terport.RunStatusCompletedWithErrors
	}
}

func documentMeta(rec *terport.GenerationRecord, topic terport.TopicSpec, doc *terport.GeneratedDocument) map[string]string {
	meta := map[string]string{
		store.MetaCategory:        topic.Category,
		store.MetaModel:           doc.ModelUsed,
		store.MetaRunID:           rec.RunID,
		store.MetaTrigger:         string(rec.Trigger),
		store.MetaPluginVersion:   rec.PluginVersion,
		store.MetaFactsConsidered: strconv.Itoa(doc.FactsConsidered),
		store.MetaGeneratedAt:     doc.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if doc.Headline != "" {
		meta[store.MetaHeadline] = doc.Headline
	}
	if encoded, err := json.Marshal(topic.ResearchQuestions); err == nil {
		meta[store.MetaResearchQuestions] = string(encoded)
	}
	if encoded, err := json.Marshal(doc.Attempts); err == nil {
		meta[store.MetaAttempts] = string(encoded)
	}
	return meta
}

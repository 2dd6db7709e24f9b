package terport

import (
	"strings"
	"time"
)

// Trigger identifies why a generation run was requested.
type Trigger string

const (
	TriggerInitial       Trigger = "initial"
	TriggerVersionUpdate Trigger = "version-update"
	TriggerManual        Trigger = "manual"
)

var allTriggers = []Trigger{TriggerInitial, TriggerVersionUpdate, TriggerManual}

// ParseTrigger converts a string into a known Trigger.
func ParseTrigger(value string) (Trigger, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	if normalized == "update" {
		normalized = string(TriggerVersionUpdate)
	}
	for _, trigger := range allTriggers {
		if string(trigger) == normalized {
			return trigger, true
		}
	}
	return "", false
}

// TopicSpec describes one document the pipeline should produce.
type TopicSpec struct {
	Title             string   `json:"title" yaml:"title"`
	Category          string   `json:"category" yaml:"category"`
	ResearchQuestions []string `json:"research_questions" yaml:"research_questions"`
}

// ResearchFact is a normalized unit of evidence returned by one knowledge-base query.
type ResearchFact struct {
	SourceEndpoint string   `json:"source_endpoint"`
	Subject        string   `json:"subject"`
	Predicate      string   `json:"predicate"`
	Object         string   `json:"object"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// ConfidenceOr returns the fact confidence or fallback when none was reported.
func (f ResearchFact) ConfidenceOr(fallback float64) float64 {
	if f.Confidence == nil {
		return fallback
	}
	return *f.Confidence
}

// AggregationResult collects the facts gathered for one topic.
//
// EndpointsFailed never exceeds EndpointsQueried. EndpointErrors is keyed by
// endpoint name and holds the first error seen for that endpoint.
type AggregationResult struct {
	Topic            TopicSpec         `json:"topic"`
	Facts            []ResearchFact    `json:"facts"`
	EndpointsQueried int               `json:"endpoints_queried"`
	EndpointsFailed  int               `json:"endpoints_failed"`
	EndpointErrors   map[string]string `json:"endpoint_errors,omitempty"`
}

// ErrorKind classifies why a model attempt failed.
type ErrorKind string

const (
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindHTTPStatus  ErrorKind = "http_status"
	ErrorKindEmpty       ErrorKind = "empty_response"
	ErrorKindMalformed   ErrorKind = "malformed_response"
	ErrorKindCanceled    ErrorKind = "canceled"
	ErrorKindNoModel     ErrorKind = "no_model"
)

// ModelAttempt records one call to one model in the hierarchy.
type ModelAttempt struct {
	ModelName string        `json:"model"`
	Succeeded bool          `json:"succeeded"`
	Latency   time.Duration `json:"latency"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// GeneratedDocument is the synthesized output for one topic.
type GeneratedDocument struct {
	TopicTitle      string         `json:"topic_title"`
	Category        string         `json:"category"`
	Headline        string         `json:"headline,omitempty"`
	Body            string         `json:"body"`
	ModelUsed       string         `json:"model_used"`
	Attempts        []ModelAttempt `json:"attempts"`
	FactsConsidered int            `json:"facts_considered"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// RunStatus is the lifecycle state of a GenerationRecord.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusFailed:
		return true
	default:
		return false
	}
}

// AdvancesVersion reports whether a run ending in this status satisfies the
// version gate.
func (s RunStatus) AdvancesVersion() bool {
	return s == RunStatusCompleted || s == RunStatusCompletedWithErrors
}

// GenerationRecord is one entry in the generation history.
type GenerationRecord struct {
	ID              int64      `json:"id"`
	RunID           string     `json:"run_id"`
	Trigger         Trigger    `json:"trigger"`
	PluginVersion   string     `json:"plugin_version"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	TopicsAttempted int        `json:"topics_attempted"`
	TopicsSucceeded int        `json:"topics_succeeded"`
	TopicsFailed    int        `json:"topics_failed"`
	Status          RunStatus  `json:"status"`
	ErrorMessage    string     `json:"error,omitempty"`
}

// Finished reports whether the record has been sealed.
func (r GenerationRecord) Finished() bool {
	return r.FinishedAt != nil
}

// TopicStatus is the outcome of one topic within a run.
type TopicStatus string

const (
	TopicSucceeded TopicStatus = "succeeded"
	TopicFailed    TopicStatus = "failed"
)

// TopicOutcome is the audit summary the orchestrator keeps for each topic.
type TopicOutcome struct {
	RunID           string            `json:"run_id"`
	Position        int               `json:"position"`
	Title           string            `json:"title"`
	Category        string            `json:"category"`
	Status          TopicStatus       `json:"status"`
	DocumentID      int64             `json:"document_id,omitempty"`
	ModelUsed       string            `json:"model_used,omitempty"`
	Attempts        []ModelAttempt    `json:"attempts,omitempty"`
	EndpointErrors  map[string]string `json:"endpoint_errors,omitempty"`
	FactsConsidered int               `json:"facts_considered"`
	ErrorMessage    string            `json:"error,omitempty"`
	RecordedAt      time.Time         `json:"recorded_at"`
}

// VersionState is the persisted version gate.
type VersionState struct {
	LastGeneratedVersion string    `json:"last_generated_version"`
	LastRunAt            time.Time `json:"last_run_at"`
}

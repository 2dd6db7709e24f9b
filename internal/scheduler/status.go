package scheduler

import (
	"context"
	"fmt"

	"terport/internal/logging"
	"terport/internal/terport"
)

// CapabilityManageOptions is the administrative capability required by the
// status surface.
const CapabilityManageOptions = "manage_options"

// Status is the read-only view returned to administrators.
type Status struct {
	Latest         *terport.GenerationRecord `json:"latest,omitempty"`
	Outcomes       []terport.TopicOutcome    `json:"outcomes,omitempty"`
	CurrentVersion string                    `json:"current_version"`
	LastVersion    string                    `json:"last_generated_version,omitempty"`
	PendingJobs    int                       `json:"pending_jobs"`
	Running        bool                      `json:"running"`
}

// CheckStatus returns the latest generation record with its topic outcomes.
// Callers without capability manage_options or a valid status nonce get an
// *AuthorizationError and no data.
func (s *Scheduler) CheckStatus(ctx context.Context, capability, token string) (*Status, error) {
	if err := s.authorize(ctx, capability, token); err != nil {
		return nil, err
	}

	status := &Status{CurrentVersion: s.version, Running: s.InFlight()}
	if last, ok := s.versions.LastVersion(ctx); ok {
		status.LastVersion = last
	}
	latest, err := s.history.LatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest run: %w", err)
	}
	status.Latest = latest
	if latest != nil {
		outcomes, err := s.history.TopicOutcomes(ctx, latest.RunID)
		if err != nil {
			return nil, fmt.Errorf("load topic outcomes: %w", err)
		}
		status.Outcomes = outcomes
	}
	pending, err := s.queue.PendingJobCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pending jobs: %w", err)
	}
	status.PendingJobs = pending
	return status, nil
}

// History returns up to limit generation records, newest first, under the
// same gate as CheckStatus.
func (s *Scheduler) History(ctx context.Context, capability, token string, limit int) ([]terport.GenerationRecord, error) {
	if err := s.authorize(ctx, capability, token); err != nil {
		return nil, err
	}
	return s.history.ListRuns(ctx, limit)
}

// IssueStatusNonce returns a token for the status surface, or "" when no
// issuer is configured.
func (s *Scheduler) IssueStatusNonce() string {
	if s.nonces == nil {
		return ""
	}
	return s.nonces.Issue(ActionStatus)
}

func (s *Scheduler) authorize(ctx context.Context, capability, token string) error {
	var reason string
	switch {
	case capability != CapabilityManageOptions:
		reason = "missing capability"
	case !s.nonces.Verify(ActionStatus, token):
		reason = "invalid nonce"
	default:
		return nil
	}
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "status query rejected", "status_access_denied",
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "request a fresh nonce with an administrator token"),
	)
	return &AuthorizationError{reason: reason}
}

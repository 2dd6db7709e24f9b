package version

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"terport/internal/logging"
	"terport/internal/services"
	"terport/internal/store"
	"terport/internal/terport"
)

// StateStore persists the version gate and exposes the run history it is
// derived from.
type StateStore interface {
	LoadVersionState(ctx context.Context) (*terport.VersionState, error)
	SaveVersionState(ctx context.Context, state terport.VersionState) error
	RunStats(ctx context.Context) (store.HistoryStats, error)
}

// Stats summarises generation history for operators.
type Stats struct {
	TotalEvents           int
	SuccessfulGenerations int
}

// Tracker decides whether a trigger should produce a generation run.
type Tracker struct {
	store  StateStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker constructs a Tracker backed by st.
func NewTracker(st StateStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		logger: logging.NewComponentLogger(logger, "version"),
		now:    time.Now,
	}
}

// LastVersion returns the last version generation completed for. ok is false
// when no run has ever completed or the state could not be read.
func (t *Tracker) LastVersion(ctx context.Context) (string, bool) {
	state := t.load(ctx)
	if state == nil {
		return "", false
	}
	return state.LastGeneratedVersion, true
}

// ShouldGenerate reports whether trigger at currentVersion needs a run.
// Versions are opaque tokens: any difference, including a downgrade, counts
// as an update.
func (t *Tracker) ShouldGenerate(ctx context.Context, currentVersion string, trigger terport.Trigger) bool {
	currentVersion = strings.TrimSpace(currentVersion)
	state := t.load(ctx)
	switch trigger {
	case terport.TriggerInitial:
		return state == nil
	case terport.TriggerVersionUpdate:
		last := ""
		if state != nil {
			last = state.LastGeneratedVersion
		}
		return currentVersion != last
	case terport.TriggerManual:
		return true
	default:
		return false
	}
}

// RecordCompletion writes the version gate unconditionally. Failures carry
// services.ErrStorage so the orchestrator fails the run.
func (t *Tracker) RecordCompletion(ctx context.Context, currentVersion string) error {
	currentVersion = strings.TrimSpace(currentVersion)
	state := terport.VersionState{
		LastGeneratedVersion: currentVersion,
		LastRunAt:            t.now().UTC(),
	}
	if err := t.store.SaveVersionState(ctx, state); err != nil {
		return services.Wrap(services.ErrStorage, "version", "record completion", fmt.Sprintf("version %q", currentVersion), err)
	}
	t.logger.Info("version gate advanced", logging.String("version", currentVersion))
	return nil
}

// Stats derives event counts from the generation history.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	history, err := t.store.RunStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalEvents:           history.TotalRuns,
		SuccessfulGenerations: history.SuccessfulRuns,
	}, nil
}

// load reads the version state, treating read failures as absent state so a
// broken read errs toward generating.
func (t *Tracker) load(ctx context.Context) *terport.VersionState {
	state, err := t.store.LoadVersionState(ctx)
	if err != nil {
		logging.WarnWithContext(t.logger, "version state unreadable; treating as first run", "version_state_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database file and permissions"),
			logging.String(logging.FieldImpact, "generation may run again for the current version"),
		)
		return nil
	}
	if state != nil && strings.TrimSpace(state.LastGeneratedVersion) == "" {
		return nil
	}
	return state
}

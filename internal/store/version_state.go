package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"terport/internal/terport"
)

// LoadVersionState returns the persisted version gate, or nil when no
// generation has ever completed.
func (s *Store) LoadVersionState(ctx context.Context) (*terport.VersionState, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var (
		version string
		runAt   string
	)
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT last_generated_version, last_run_at FROM version_state WHERE id = 1`,
	).Scan(&version, &runAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("load version state", err)
	}
	state := &terport.VersionState{LastGeneratedVersion: version}
	if parsed, perr := parseTimeString(runAt); perr == nil {
		state.LastRunAt = parsed
	}
	return state, nil
}

// SaveVersionState replaces the singleton version gate.
func (s *Store) SaveVersionState(ctx context.Context, state terport.VersionState) error {
	if strings.TrimSpace(state.LastGeneratedVersion) == "" {
		return errors.New("save version state: version is empty")
	}
	if state.LastRunAt.IsZero() {
		state.LastRunAt = time.Now()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO version_state (id, last_generated_version, last_run_at)
         VALUES (1, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             last_generated_version = excluded.last_generated_version,
             last_run_at = excluded.last_run_at`,
		state.LastGeneratedVersion,
		formatTime(state.LastRunAt),
	)
	return wrapErr("save version state", err)
}

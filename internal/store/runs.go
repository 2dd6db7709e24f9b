package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"terport/internal/terport"
)

// ErrRecordSealed is returned when updating a history entry that already has
// a finish time.
var ErrRecordSealed = errors.New("generation record already finished")

const runColumns = "id, run_id, trigger_type, plugin_version, started_at, finished_at, topics_attempted, topics_succeeded, topics_failed, status, error_message"

// HistoryStats summarises the generation history.
type HistoryStats struct {
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastRunAt      *time.Time
}

func scanRun(scanner rowScanner) (*terport.GenerationRecord, error) {
	var (
		rec        terport.GenerationRecord
		trigger    string
		status     string
		startedRaw string
		finished   sql.NullString
		errMessage sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.RunID,
		&trigger,
		&rec.PluginVersion,
		&startedRaw,
		&finished,
		&rec.TopicsAttempted,
		&rec.TopicsSucceeded,
		&rec.TopicsFailed,
		&status,
		&errMessage,
	); err != nil {
		return nil, err
	}
	rec.Trigger = terport.Trigger(trigger)
	rec.Status = terport.RunStatus(status)
	rec.ErrorMessage = errMessage.String
	if started, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = started
	}
	rec.FinishedAt = parseNullTime(finished)
	return &rec, nil
}

// CreateRun appends a new history entry and assigns rec.ID.
func (s *Store) CreateRun(ctx context.Context, rec *terport.GenerationRecord) error {
	if rec == nil {
		return errors.New("create run: record is nil")
	}
	if strings.TrimSpace(rec.RunID) == "" {
		return errors.New("create run: run id is empty")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = terport.RunStatusRunning
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO generation_runs (
            run_id, trigger_type, plugin_version, started_at, finished_at,
            topics_attempted, topics_succeeded, topics_failed, status, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		string(rec.Trigger),
		rec.PluginVersion,
		formatTime(rec.StartedAt),
		nullableTime(rec.FinishedAt),
		rec.TopicsAttempted,
		rec.TopicsSucceeded,
		rec.TopicsFailed,
		string(rec.Status),
		nullableString(rec.ErrorMessage),
	)
	if err != nil {
		return wrapErr("insert run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("last insert id", err)
	}
	rec.ID = id
	return nil
}

// UpdateRun rewrites the counters and status of an unfinished history entry.
// Once FinishedAt has been persisted the entry is immutable.
func (s *Store) UpdateRun(ctx context.Context, rec *terport.GenerationRecord) error {
	if rec == nil {
		return errors.New("update run: record is nil")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_runs SET
            finished_at = ?, topics_attempted = ?, topics_succeeded = ?,
            topics_failed = ?, status = ?, error_message = ?
         WHERE run_id = ? AND finished_at IS NULL`,
		nullableTime(rec.FinishedAt),
		rec.TopicsAttempted,
		rec.TopicsSucceeded,
		rec.TopicsFailed,
		string(rec.Status),
		nullableString(rec.ErrorMessage),
		rec.RunID,
	)
	if err != nil {
		return wrapErr("update run", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update run rows", err)
	}
	if affected == 0 {
		existing, getErr := s.GetRun(ctx, rec.RunID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("update run %s: not found", rec.RunID)
		}
		return fmt.Errorf("update run %s: %w", rec.RunID, ErrRecordSealed)
	}
	return nil
}

// GetRun fetches a history entry by run identifier. It returns nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*terport.GenerationRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM generation_runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get run", err)
	}
	return rec, nil
}

// LatestRun returns the most recently started history entry, or nil.
func (s *Store) LatestRun(ctx context.Context) (*terport.GenerationRecord, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListRuns returns history entries newest first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]terport.GenerationRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT ` + runColumns + ` FROM generation_runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, wrapErr("list runs", err)
	}
	defer rows.Close()

	var runs []terport.GenerationRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, wrapErr("scan run", err)
		}
		runs = append(runs, *rec)
	}
	return runs, wrapErr("iterate runs", rows.Err())
}

// RunStats derives aggregate counts from the generation history.
func (s *Store) RunStats(ctx context.Context) (HistoryStats, error) {
	var stats HistoryStats
	if s == nil || s.db == nil {
		return stats, ErrUnavailable
	}
	var lastStarted sql.NullString
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT
            COUNT(1),
            COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
            MAX(started_at)
         FROM generation_runs`,
		string(terport.RunStatusCompleted),
		string(terport.RunStatusCompletedWithErrors),
		string(terport.RunStatusFailed),
	).Scan(&stats.TotalRuns, &stats.SuccessfulRuns, &stats.FailedRuns, &lastStarted)
	if err != nil {
		return stats, wrapErr("run stats", err)
	}
	stats.LastRunAt = parseNullTime(lastStarted)
	return stats, nil
}

// RecordTopicOutcome stores the audit summary for one topic of a run.
func (s *Store) RecordTopicOutcome(ctx context.Context, outcome terport.TopicOutcome) error {
	if strings.TrimSpace(outcome.RunID) == "" {
		return errors.New("record topic outcome: run id is empty")
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}
	attempts, err := marshalOptional(outcome.Attempts, len(outcome.Attempts) > 0)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	endpointErrors, err := marshalOptional(outcome.EndpointErrors, len(outcome.EndpointErrors) > 0)
	if err != nil {
		return fmt.Errorf("encode endpoint errors: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO generation_topics (
            run_id, position, title, category, status, document_id, model_used,
            attempts_json, endpoint_errors_json, facts_considered, error_message, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.Position,
		outcome.Title,
		nullableString(outcome.Category),
		string(outcome.Status),
		nullableInt64(outcome.DocumentID),
		nullableString(outcome.ModelUsed),
		attempts,
		endpointErrors,
		outcome.FactsConsidered,
		nullableString(outcome.ErrorMessage),
		formatTime(outcome.RecordedAt),
	)
	return wrapErr("insert topic outcome", err)
}

// TopicOutcomes returns the per-topic ledger of a run in topic order.
func (s *Store) TopicOutcomes(ctx context.Context, runID string) ([]terport.TopicOutcome, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT run_id, position, title, category, status, document_id, model_used,
                attempts_json, endpoint_errors_json, facts_considered, error_message, recorded_at
         FROM generation_topics WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, wrapErr("list topic outcomes", err)
	}
	defer rows.Close()

	var outcomes []terport.TopicOutcome
	for rows.Next() {
		var (
			outcome        terport.TopicOutcome
			category       sql.NullString
			status         string
			documentID     sql.NullInt64
			modelUsed      sql.NullString
			attempts       sql.NullString
			endpointErrors sql.NullString
			errMessage     sql.NullString
			recordedRaw    string
		)
		if err := rows.Scan(
			&outcome.RunID,
			&outcome.Position,
			&outcome.Title,
			&category,
			&status,
			&documentID,
			&modelUsed,
			&attempts,
			&endpointErrors,
			&outcome.FactsConsidered,
			&errMessage,
			&recordedRaw,
		); err != nil {
			return nil, wrapErr("scan topic outcome", err)
		}
		outcome.Category = category.String
		outcome.Status = terport.TopicStatus(status)
		outcome.DocumentID = documentID.Int64
		outcome.ModelUsed = modelUsed.String
		outcome.ErrorMessage = errMessage.String
		if attempts.Valid && attempts.String != "" {
			if err := json.Unmarshal([]byte(attempts.String), &outcome.Attempts); err != nil {
				return nil, fmt.Errorf("decode attempts for %s: %w", outcome.Title, err)
			}
		}
		if endpointErrors.Valid && endpointErrors.String != "" {
			if err := json.Unmarshal([]byte(endpointErrors.String), &outcome.EndpointErrors); err != nil {
				return nil, fmt.Errorf("decode endpoint errors for %s: %w", outcome.Title, err)
			}
		}
		if recorded, err := parseTimeString(recordedRaw); err == nil {
			outcome.RecordedAt = recorded
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, wrapErr("iterate topic outcomes", rows.Err())
}

func marshalOptional(value any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

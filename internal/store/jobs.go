package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"terport/internal/terport"
)

// JobStatus is the lifecycle state of a queued trigger.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a trigger waiting for the background tick.
type Job struct {
	ID            int64
	Trigger       terport.Trigger
	PluginVersion string
	Status        JobStatus
	RequestedAt   time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	RunID         string
	ErrorMessage  string
}

const jobColumns = "id, trigger_type, plugin_version, status, requested_at, started_at, finished_at, run_id, error_message"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job        Job
		trigger    string
		status     string
		requested  string
		started    sql.NullString
		finished   sql.NullString
		runID      sql.NullString
		errMessage sql.NullString
	)
	if err := scanner.Scan(&job.ID, &trigger, &job.PluginVersion, &status, &requested, &started, &finished, &runID, &errMessage); err != nil {
		return nil, err
	}
	job.Trigger = terport.Trigger(trigger)
	job.Status = JobStatus(status)
	if t, err := parseTimeString(requested); err == nil {
		job.RequestedAt = t
	}
	job.StartedAt = parseNullTime(started)
	job.FinishedAt = parseNullTime(finished)
	job.RunID = runID.String
	job.ErrorMessage = errMessage.String
	return &job, nil
}

// EnqueueJob records a pending trigger for the background tick.
func (s *Store) EnqueueJob(ctx context.Context, trigger terport.Trigger, pluginVersion string) (*Job, error) {
	if trigger == "" {
		return nil, errors.New("enqueue job: trigger is empty")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (trigger_type, plugin_version, status, requested_at) VALUES (?, ?, ?, ?)`,
		string(trigger),
		strings.TrimSpace(pluginVersion),
		string(JobPending),
		formatTime(now),
	)
	if err != nil {
		return nil, wrapErr("insert job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapErr("last insert id", err)
	}
	return &Job{
		ID:            id,
		Trigger:       trigger,
		PluginVersion: strings.TrimSpace(pluginVersion),
		Status:        JobPending,
		RequestedAt:   now,
	}, nil
}

// ClaimNextJob moves the oldest pending job to running and returns it.
// It returns nil when nothing is pending.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id LIMIT 1`,
			string(JobPending),
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(JobRunning), formatTime(now), job.ID, string(JobPending),
		); err != nil {
			return err
		}
		job.Status = JobRunning
		job.StartedAt = &now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, wrapErr("claim job", err)
	}
	return claimed, nil
}

// FinishJob seals a running job. A nil jobErr marks it done.
func (s *Store) FinishJob(ctx context.Context, id int64, runID string, jobErr error) error {
	status := JobDone
	message := ""
	if jobErr != nil {
		status = JobFailed
		message = jobErr.Error()
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, run_id = ?, error_message = ? WHERE id = ? AND status = ?`,
		string(status),
		formatTime(time.Now()),
		nullableString(runID),
		nullableString(message),
		id,
		string(JobRunning),
	)
	if err != nil {
		return wrapErr("finish job", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("finish job %d: not running", id)
	}
	return nil
}

// ResetStaleJobs returns jobs left running by a crashed process to pending.
func (s *Store) ResetStaleJobs(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, started_at = NULL WHERE status = ?`,
		string(JobPending),
		string(JobRunning),
	)
	if err != nil {
		return 0, wrapErr("reset stale jobs", err)
	}
	return res.RowsAffected()
}

// PendingJobCount returns how many triggers await the next tick.
func (s *Store) PendingJobCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrUnavailable
	}
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs WHERE status = ?`, string(JobPending),
	).Scan(&count)
	return count, wrapErr("count pending jobs", err)
}

// RecentJobs returns up to limit jobs, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, wrapErr("list jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, wrapErr("scan job", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, wrapErr("iterate jobs", rows.Err())
}

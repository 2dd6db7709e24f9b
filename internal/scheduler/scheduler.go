package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"terport/internal/logging"
	"terport/internal/store"
	"terport/internal/terport"
)

const defaultTickInterval = 15 * time.Minute

// Runner executes one generation run.
type Runner interface {
	Run(ctx context.Context, trigger terport.Trigger, version string) (*terport.GenerationRecord, error)
}

// VersionReader exposes the last generated version.
type VersionReader interface {
	LastVersion(ctx context.Context) (string, bool)
}

// Queue persists pending triggers.
type Queue interface {
	EnqueueJob(ctx context.Context, trigger terport.Trigger, pluginVersion string) (*store.Job, error)
	ClaimNextJob(ctx context.Context) (*store.Job, error)
	FinishJob(ctx context.Context, id int64, runID string, jobErr error) error
	ResetStaleJobs(ctx context.Context) (int64, error)
	PendingJobCount(ctx context.Context) (int, error)
}

// HistoryReader reads generation history for the status surface.
type HistoryReader interface {
	LatestRun(ctx context.Context) (*terport.GenerationRecord, error)
	ListRuns(ctx context.Context, limit int) ([]terport.GenerationRecord, error)
	TopicOutcomes(ctx context.Context, runID string) ([]terport.TopicOutcome, error)
}

// Options configures a Scheduler.
type Options struct {
	Version      string
	TickInterval time.Duration
	// LockPath is the cross-process run lock. Empty disables it.
	LockPath string
	Nonces   *NonceIssuer
	Logger   *slog.Logger
}

// Scheduler owns run exclusion and the background tick loop.
type Scheduler struct {
	runner   Runner
	versions VersionReader
	queue    Queue
	history  HistoryReader
	version  string
	interval time.Duration
	nonces   *NonceIssuer
	logger   *slog.Logger

	runMu    sync.Mutex
	fileLock *flock.Flock
	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Scheduler.
func New(runner Runner, versions VersionReader, queue Queue, history HistoryReader, opts Options) *Scheduler {
	interval := opts.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	s := &Scheduler{
		runner:   runner,
		versions: versions,
		queue:    queue,
		history:  history,
		version:  strings.TrimSpace(opts.Version),
		interval: interval,
		nonces:   opts.Nonces,
		logger:   logging.NewComponentLogger(opts.Logger, "scheduler"),
	}
	if path := strings.TrimSpace(opts.LockPath); path != "" {
		s.fileLock = flock.New(path)
	}
	return s
}

// OnActivationOrUpdate enqueues a generation job for currentVersion and
// returns without running it. The trigger is Initial until a version has
// been generated and VersionUpdate afterwards.
func (s *Scheduler) OnActivationOrUpdate(ctx context.Context, currentVersion string) (*store.Job, error) {
	currentVersion = strings.TrimSpace(currentVersion)
	if currentVersion == "" {
		currentVersion = s.version
	}
	trigger := s.selfCheckTrigger(ctx)
	job, err := s.queue.EnqueueJob(ctx, trigger, currentVersion)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", trigger, err)
	}
	s.logger.Info("generation job enqueued",
		logging.Int64("job_id", job.ID),
		logging.String(logging.FieldTrigger, string(trigger)),
		logging.String("version", currentVersion),
	)
	return job, nil
}

// Enqueue queues an explicit trigger, used for operator requests.
func (s *Scheduler) Enqueue(ctx context.Context, trigger terport.Trigger) (*store.Job, error) {
	job, err := s.queue.EnqueueJob(ctx, trigger, s.version)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", trigger, err)
	}
	return job, nil
}

// OnBackgroundTick runs the oldest pending job, or a self-check when none is
// pending. It returns ErrRunInProgress when another run holds the lock and a
// nil record when the run was a no-op.
func (s *Scheduler) OnBackgroundTick(ctx context.Context) (*terport.GenerationRecord, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := s.queue.ClaimNextJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return s.runner.Run(ctx, s.selfCheckTrigger(ctx), s.version)
	}

	logger := s.logger.With(logging.Int64("job_id", job.ID), logging.String(logging.FieldTrigger, string(job.Trigger)))
	logger.Info("generation job claimed", logging.String("version", job.PluginVersion))

	rec, runErr := s.runner.Run(ctx, job.Trigger, job.PluginVersion)
	jobErr := runErr
	runID := ""
	if rec != nil {
		runID = rec.RunID
		if jobErr == nil && rec.Status == terport.RunStatusFailed {
			jobErr = errors.New(rec.ErrorMessage)
		}
	}
	if err := s.queue.FinishJob(context.WithoutCancel(ctx), job.ID, runID, jobErr); err != nil {
		logging.WarnWithContext(logger, "job could not be sealed", "job_finish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is reset to pending on next start"),
		)
	}
	return rec, runErr
}

// RunNow runs trigger immediately under the run lock.
func (s *Scheduler) RunNow(ctx context.Context, trigger terport.Trigger) (*terport.GenerationRecord, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.runner.Run(ctx, trigger, s.version)
}

// InFlight reports whether this process is running a generation.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Start resets jobs orphaned by a crash and launches the tick loop. The first
// tick fires immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	if reset, err := s.queue.ResetStaleJobs(ctx); err != nil {
		return fmt.Errorf("reset stale jobs: %w", err)
	} else if reset > 0 {
		s.logger.Info("stale jobs returned to pending", logging.Int64("count", reset))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels the tick loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	rec, err := s.OnBackgroundTick(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Debug("tick skipped; run in progress")
	case errors.Is(err, context.Canceled):
	case err != nil:
		logging.ErrorWithContext(s.logger, "background tick failed", "tick_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next tick retries"),
		)
	case rec != nil:
		s.logger.Info("background tick finished run",
			logging.String(logging.FieldRunID, rec.RunID),
			logging.String("status", string(rec.Status)),
		)
	}
}

// acquire takes the in-process and cross-process run locks.
func (s *Scheduler) acquire() (func(), error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	if s.fileLock != nil {
		ok, err := s.fileLock.TryLock()
		if err != nil {
			s.runMu.Unlock()
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			s.runMu.Unlock()
			return nil, ErrRunInProgress
		}
	}
	s.inFlight.Store(true)
	return func() {
		s.inFlight.Store(false)
		if s.fileLock != nil {
			if err := s.fileLock.Unlock(); err != nil {
				s.logger.Warn("failed to release run lock", logging.Error(err))
			}
		}
		s.runMu.Unlock()
	}, nil
}

func (s *Scheduler) selfCheckTrigger(ctx context.Context) terport.Trigger {
	if _, ok := s.versions.LastVersion(ctx); ok {
		return terport.TriggerVersionUpdate
	}
	return terport.TriggerInitial
}

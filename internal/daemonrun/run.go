package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"terport/internal/config"
	"terport/internal/daemon"
	"terport/internal/generation"
	"terport/internal/logging"
	"terport/internal/notifications"
	"terport/internal/preflight"
	"terport/internal/research"
	"terport/internal/scheduler"
	"terport/internal/services/llm"
	"terport/internal/store"
	"terport/internal/synthesis"
	"terport/internal/topics"
	"terport/internal/version"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Runtime is the wired generation pipeline shared by the daemon and the CLI.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Tracker      *version.Tracker
	Topics       *topics.Registry
	Orchestrator *generation.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// Build opens the store and wires every pipeline component from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry, err := topics.New(cfg.Plugin.Version)
	if err != nil {
		return nil, fmt.Errorf("load topic catalog: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker := version.NewTracker(st, logger)
	client := research.NewClient(research.WithResultLimit(cfg.Knowledge.ResultLimit))
	aggregator := research.NewAggregator(client, cfg.QueryTimeout(), cfg.Knowledge.MaxConcurrency, logger)

	llmCfg := cfg.GetLLM()
	completer := llm.NewCompleter(llmCfg.Provider, llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
		Temperature:    cfg.Synthesis.Temperature,
	}, llm.WithRetryMaxAttempts(llmCfg.RetryAttempts))
	writer := synthesis.New(completer, synthesis.Options{
		MaxFacts:     cfg.Synthesis.MaxFacts,
		MinBodyChars: cfg.Synthesis.MinBodyChars,
	}, logger)

	orchestrator := generation.New(generation.Dependencies{
		Gate:      tracker,
		Topics:    registry,
		Research:  aggregator,
		Endpoints: research.EndpointsFromConfig(cfg.Knowledge.Endpoints),
		Writer:    writer,
		Documents: st,
		History:   st,
		Notifier:  notifications.NewService(cfg),
		Hierarchy: cfg.ModelHierarchy(),
		Logger:    logger,
	})

	sched := scheduler.New(orchestrator, tracker, st, st, scheduler.Options{
		Version:      cfg.Plugin.Version,
		TickInterval: cfg.TickInterval(),
		LockPath:     cfg.RunLockPath(),
		Nonces:       scheduler.NewNonceIssuer(cfg.Security.NonceSecret, cfg.NonceLifetime()),
		Logger:       logger,
	})

	return &Runtime{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Tracker:      tracker,
		Topics:       registry,
		Orchestrator: orchestrator,
		Scheduler:    sched,
	}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Run starts the terport daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, logging.Options{
		Level:       opts.LogLevel,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "terportd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("build pipeline", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, rt.Store, rt.Scheduler, logger)
	if err != nil {
		_ = rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if cfg.Scheduler.EnqueueOnStart {
		if _, err := rt.Scheduler.OnActivationOrUpdate(signalCtx, cfg.Plugin.Version); err != nil {
			logging.WarnWithContext(logger, "activation job not queued", "activation_enqueue_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the database file and permissions"),
				logging.String(logging.FieldImpact, "the background self-check still detects version changes"),
			)
		}
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another terportd instance and the api bind address"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("terport daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	llmCfg := cfg.GetLLM()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("plugin_version", cfg.Plugin.Version),
		logging.String("llm_provider", llmCfg.Provider),
		logging.Bool("llm_key_present", llmCfg.APIKey != ""),
		logging.Strings("models", cfg.ModelHierarchy()),
		logging.Int("endpoints", len(cfg.Knowledge.Endpoints)),
		logging.Bool("status_api_enabled", strings.TrimSpace(cfg.Paths.APIBind) != "" && cfg.Security.AdminToken != ""),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Duration("tick_interval", cfg.TickInterval()),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run `terport check` for the full report"),
			logging.String(logging.FieldImpact, "runs may fall back to other models or fewer facts"),
		)
	}
	logger.Info("preflight complete", logging.String("summary", preflight.Summary(results)))
}

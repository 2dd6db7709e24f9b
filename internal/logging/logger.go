package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"terport/internal/config"
)

// Options describes logger construction parameters. OutputPaths entries are
// "stdout", "stderr" or file paths; files are appended to.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a logger. Format is "console" (the default) or "json".
// Development mode and debug level both add source locations.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	var build func(io.Writer, *slog.LevelVar, bool) slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		build = newConsoleHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	return slog.New(build(out, level, addSource)), nil
}

// NewFromConfig builds a logger from the [logging] section, writing to the
// console stream and the configured log file. Non-empty fields of overrides
// replace the configured values.
func NewFromConfig(cfg *config.Config, overrides Options) (*slog.Logger, error) {
	opts := Options{Level: "info", OutputPaths: []string{"stdout"}}
	if cfg != nil {
		opts.Level = cfg.Logging.Level
		opts.Format = cfg.Logging.Format
		if cfg.Paths.LogDir != "" {
			opts.OutputPaths = append(opts.OutputPaths, cfg.LogFilePath())
		}
	}
	if strings.TrimSpace(overrides.Level) != "" {
		opts.Level = overrides.Level
	}
	if strings.TrimSpace(overrides.Format) != "" {
		opts.Format = overrides.Format
	}
	if len(overrides.OutputPaths) > 0 {
		// The console stream is replaceable; the log file always stays.
		opts.OutputPaths[0] = overrides.OutputPaths[0]
		opts.OutputPaths = append(opts.OutputPaths, overrides.OutputPaths[1:]...)
	}
	opts.Development = overrides.Development
	return New(opts)
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err == nil {
		return parsed
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return slog.LevelWarn
	case "fatal":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openOutputs resolves each distinct path once and fans out to all of them.
func openOutputs(paths []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths))
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		w, err := openOutput(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openOutput(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// newJSONHandler emits lower-case levels, RFC 3339 UTC "ts" and short
// file:line sources.
func newJSONHandler(w io.Writer, level *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339))
			case slog.LevelKey:
				return slog.String(slog.LevelKey, strings.ToLower(a.Value.String()))
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return a
		},
	})
}

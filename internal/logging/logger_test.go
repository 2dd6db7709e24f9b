package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"terport/internal/config"
	"terport/internal/services"
)

func newBufferedConsole(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(level)
	return slog.New(newConsoleHandler(&buf, lv, false)), &buf
}

func TestConsoleHandlerPromotesComponentAndRun(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelInfo)
	logger = NewComponentLogger(logger, "orchestrator").With(String(FieldRunID, "1a2b3c4d-5e6f"))
	logger.Info("topic synthesized", String(FieldTopic, "Pain and Inflammation"), Int("facts", 12))

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator [run 1a2b3c4d] <Pain and Inflammation>: topic synthesized") {
		t.Fatalf("unexpected console prefix: %q", line)
	}
	if !strings.Contains(line, "facts=12") {
		t.Fatalf("expected facts attr: %q", line)
	}
	if strings.Contains(line, "component=") || strings.Contains(line, "run_id=") || strings.Contains(line, "topic=") {
		t.Fatalf("promoted fields should not repeat as attrs: %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelWarn)
	logger.Info("hidden")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "WARN") {
		t.Fatalf("expected warn output, got %q", buf.String())
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelInfo)
	logger.WithGroup("endpoint").Info("queried", String("name", "wikidata"), Int("facts", 3))
	line := buf.String()
	if !strings.Contains(line, "endpoint.name=wikidata") || !strings.Contains(line, "endpoint.facts=3") {
		t.Fatalf("expected grouped keys, got %q", line)
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelInfo)
	WarnWithContext(logger, "endpoint failed", "endpoint_failure", String(FieldImpact, "fewer facts"))
	line := buf.String()
	for _, want := range []string{"event_type=endpoint_failure", `error_hint="check logs for details"`, `impact="fewer facts"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestErrorWithContextIncludesError(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelInfo)
	ErrorWithContext(logger, "run failed", "run_failed", Error(errors.New("database is locked")))
	line := buf.String()
	if !strings.Contains(line, `error="database is locked"`) {
		t.Fatalf("expected error attr, got %q", line)
	}
	if !strings.Contains(line, "event_type=run_failed") {
		t.Fatalf("expected event type, got %q", line)
	}
}

func TestWithContextAddsRunAndTopic(t *testing.T) {
	logger, buf := newBufferedConsole(slog.LevelInfo)
	ctx := services.WithRunID(context.Background(), "run-42")
	ctx = services.WithTopic(ctx, "Sleep")
	WithContext(ctx, logger).Info("researching")
	line := buf.String()
	if !strings.Contains(line, "[run run-42] <Sleep>: researching") {
		t.Fatalf("expected run and topic prefix, got %q", line)
	}
}

func TestNewJSONWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "terport.log")
	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", String(FieldModel, "openai/gpt-4.1"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, data)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", entry["level"])
	}
	if entry[FieldModel] != "openai/gpt-4.1" {
		t.Fatalf("expected model attr, got %v", entry[FieldModel])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigCreatesLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "nested", "logs")
	cfg.Logging.Format = "json"
	logger, err := NewFromConfig(&cfg, Options{OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("started")
	if _, err := os.Stat(cfg.LogFilePath()); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
	WarnWithContext(nil, "ignored", "noop")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"fatal":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

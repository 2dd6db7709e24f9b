package main

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"terport/internal/config"
	"terport/internal/services"
	"terport/internal/testsupport"
)

const cliBody = "# Overview\n\n" +
	"This terpene appears in many aromatic plants and has been studied for its scent profile, " +
	"its typical concentration ranges, and its interactions with other compounds."

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	kb := testsupport.NewSPARQLServer(t, testsupport.Binding{
		Subject:   "http://example.org/limonene",
		Predicate: "http://example.org/foundIn",
		Object:    "Citrus peel",
	})
	chat := testsupport.NewChatServer(t, func(string) (string, int) {
		return cliBody, http.StatusOK
	})
	opts = append([]testsupport.ConfigOption{
		testsupport.WithPluginVersion("3.9.4"),
		testsupport.WithModels("model-a", "model-b"),
		testsupport.WithLLMBaseURL(chat.URL),
		testsupport.WithEndpoint("kb", kb.URL, ""),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "model-a > model-b")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestStatusBeforeAnyRun(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "never")
	requireContains(t, out, "No generation runs yet")
}

func TestGenerateThenInspect(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate"}, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "Myrcene")

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "3.9.4")
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, []string{"history", "--limit", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "manual")

	out, _, err = runCLI(t, []string{"documents", "--limit", "3"}, env.configPath)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	requireContains(t, out, "Showing 3 of")
	requireContains(t, out, "model-a")

	out, _, err = runCLI(t, []string{"documents", "show", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("documents show: %v", err)
	}
	requireContains(t, out, "aromatic plants")

	if _, _, err := runCLI(t, []string{"documents", "show", "9999"}, env.configPath); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing document, got %v", err)
	}
}

func TestGenerateRejectsUnknownTrigger(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"generate", "--trigger", "cron"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown trigger") {
		t.Fatalf("expected unknown trigger error, got %v", err)
	}
}

func TestTopicsForVersionUpdate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"topics"}, env.configPath)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	requireContains(t, out, "Myrcene")

	out, _, err = runCLI(t, []string{"topics", "--trigger", "version-update", "--since", "1.0.2", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("topics --json: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "[") {
		t.Fatalf("expected JSON array, got %q", out)
	}
	requireContains(t, out, "Pain and Inflammation")
	if strings.Contains(out, "Myrcene") {
		t.Fatalf("version update topics should not repeat the initial release: %s", out)
	}

	out, _, err = runCLI(t, []string{"topics", "--trigger", "version-update", "--since", "3.9.0"}, env.configPath)
	if err != nil {
		t.Fatalf("topics --since 3.9.0: %v", err)
	}
	requireContains(t, out, "No topics for version-update")
}

func TestCheckReportsFailingEndpoint(t *testing.T) {
	healthy := testsupport.NewChatServer(t, func(string) (string, int) {
		return `{"ok":true}`, http.StatusOK
	})
	env := setupCLITestEnv(t,
		testsupport.WithLLMBaseURL(healthy.URL),
		testsupport.WithEndpoint("offline", "http://127.0.0.1:1/sparql", ""),
	)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "1 preflight checks failed") {
		t.Fatalf("expected one failed check, got %v\n%s", err, out)
	}
	requireContains(t, out, "Endpoint kb")
	requireContains(t, out, "Endpoint offline")
	requireContains(t, out, "Model model-b")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terport/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("TERPORT_LLM_API_KEY", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "terport")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "terport.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if len(cfg.ModelHierarchy()) == 0 {
		t.Fatal("expected default model hierarchy")
	}
	if cfg.Security.NonceSecret == "" {
		t.Fatal("expected generated nonce secret")
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
}

func TestLoadCustomConfigNormalizesHierarchyAndEndpoints(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[plugin]
version = " 3.9.4 "

[llm]
provider = "OpenAI"
api_key = "key"
base_url = ""
models = ["gpt-4.1", " gpt-4.1 ", "", "gpt-4.1-mini"]

[[knowledge.endpoints]]
url = "https://kb-one.example.org/sparql"

[[knowledge.endpoints]]
name = "two"
ask_url = "https://kb-two.example.org/ask"

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Plugin.Version != "3.9.4" {
		t.Fatalf("expected trimmed version, got %q", cfg.Plugin.Version)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("expected lower-cased provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL != "" {
		t.Fatalf("expected openai provider to keep empty base url, got %q", cfg.LLM.BaseURL)
	}
	if diff := cmp.Diff([]string{"gpt-4.1", "gpt-4.1-mini"}, cfg.ModelHierarchy()); diff != "" {
		t.Fatalf("model hierarchy mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.Knowledge.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.Knowledge.Endpoints))
	}
	if cfg.Knowledge.Endpoints[0].Name != "https://kb-one.example.org/sparql" {
		t.Fatalf("expected unnamed endpoint to fall back to url, got %q", cfg.Knowledge.Endpoints[0].Name)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "missing version",
			mutate: func(c *config.Config) { c.Plugin.Version = "" },
			want:   "plugin.version",
		},
		{
			name:   "empty hierarchy",
			mutate: func(c *config.Config) { c.LLM.Models = nil },
			want:   "llm.models",
		},
		{
			name:   "unknown provider",
			mutate: func(c *config.Config) { c.LLM.Provider = "carrier-pigeon" },
			want:   "llm.provider",
		},
		{
			name: "endpoint without url",
			mutate: func(c *config.Config) {
				c.Knowledge.Endpoints = []config.Endpoint{{Name: "empty"}}
			},
			want: "url or ask_url",
		},
		{
			name: "endpoint bad scheme",
			mutate: func(c *config.Config) {
				c.Knowledge.Endpoints = []config.Endpoint{{Name: "ftp", URL: "ftp://kb.example.org"}}
			},
			want: "scheme",
		},
		{
			name: "duplicate endpoint",
			mutate: func(c *config.Config) {
				c.Knowledge.Endpoints = []config.Endpoint{
					{Name: "kb", URL: "https://a.example.org/sparql"},
					{Name: "kb", URL: "https://b.example.org/sparql"},
				}
			},
			want: "duplicate",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if len(cfg.Knowledge.Endpoints) != 2 {
		t.Fatalf("expected sample endpoints, got %d", len(cfg.Knowledge.Endpoints))
	}
	if cfg.TickInterval().Seconds() != 900 {
		t.Fatalf("unexpected tick interval: %v", cfg.TickInterval())
	}
}

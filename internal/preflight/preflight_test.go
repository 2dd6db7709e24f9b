package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"terport/internal/config"
	"terport/internal/research"
	"terport/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "Model a", config.LLMConfig{}, "a")
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckLLM_PerModel(t *testing.T) {
	srv := testsupport.NewChatServer(t, func(model string) (string, int) {
		if model == "retired-model" {
			return `{"error":{"message":"no such model"}}`, http.StatusNotFound
		}
		return `{"ok":true}`, http.StatusOK
	})
	cfg := config.LLMConfig{Provider: "openrouter", APIKey: "test", BaseURL: srv.URL}

	if result := CheckLLM(context.Background(), "Model good", cfg, "good-model"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckLLM(context.Background(), "Model retired", cfg, "retired-model")
	if result.Passed || result.Detail != "model not found" {
		t.Fatalf("expected model not found, got %+v", result)
	}
}

func TestCheckEndpoint(t *testing.T) {
	kb := testsupport.NewSPARQLServer(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	client := research.NewClient()
	if result := CheckEndpoint(context.Background(), client, research.Endpoint{Name: "kb", URL: kb.URL}, 0); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckEndpoint(context.Background(), client, research.Endpoint{Name: "broken", URL: broken.URL}, 0)
	if result.Passed || !strings.HasPrefix(result.Detail, "http_status") {
		t.Fatalf("expected http_status failure, got %+v", result)
	}
	if result.Name != "Endpoint broken" {
		t.Fatalf("unexpected name %q", result.Name)
	}
}

func TestRunAllCoversHierarchyAndEndpoints(t *testing.T) {
	kb := testsupport.NewSPARQLServer(t)
	chat := testsupport.NewChatServer(t, func(string) (string, int) { return `{"ok":true}`, http.StatusOK })
	cfg := testsupport.NewConfig(t,
		testsupport.WithModels("model-a", "model-b"),
		testsupport.WithLLMBaseURL(chat.URL),
		testsupport.WithEndpoint("kb", kb.URL, ""),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 checks, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
	if Summary(results) != "all 5 checks passed" {
		t.Fatalf("unexpected summary %q", Summary(results))
	}
}

func TestSummaryNamesFailures(t *testing.T) {
	got := Summary([]Result{{Name: "a", Passed: true}, {Name: "b"}, {Name: "c"}})
	if got != "2 of 3 checks failed: b, c" {
		t.Fatalf("unexpected summary %q", got)
	}
}

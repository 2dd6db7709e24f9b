package testsupport

import (
	"path/filepath"
	"testing"

	"terport/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.Models = []string{"model-a", "model-b", "model-c"}
	cfgVal.LLM.RetryAttempts = 1
	cfgVal.Knowledge.Endpoints = nil
	cfgVal.Knowledge.QueryTimeoutSeconds = 2
	cfgVal.Synthesis.MinBodyChars = 20
	cfgVal.Security.AdminToken = "admin-token"
	cfgVal.Security.NonceSecret = "nonce-secret"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPluginVersion overrides the deployed release version.
func WithPluginVersion(version string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Plugin.Version = version
	}
}

// WithModels overrides the model hierarchy.
func WithModels(models ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Models = append([]string(nil), models...)
	}
}

// WithLLMBaseURL points the model gateway at a test server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithEndpoint appends a knowledge-base endpoint.
func WithEndpoint(name, url, askURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Knowledge.Endpoints = append(b.cfg.Knowledge.Endpoints, config.Endpoint{
			Name:   name,
			URL:    url,
			AskURL: askURL,
		})
	}
}

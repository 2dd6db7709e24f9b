package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Plugin identifies the deployed release the version gate compares against.
type Plugin struct {
	Version string `toml:"version"`
}

// Endpoint describes one federated knowledge-base endpoint.
type Endpoint struct {
	Name         string `toml:"name"`
	URL          string `toml:"url"`
	AskURL       string `toml:"ask_url"`
	DefaultGraph string `toml:"default_graph"`
}

// Knowledge contains configuration for the federated research step.
type Knowledge struct {
	QueryTimeoutSeconds int        `toml:"query_timeout_seconds"`
	MaxConcurrency      int        `toml:"max_concurrency"`
	ResultLimit         int        `toml:"result_limit"`
	Endpoints           []Endpoint `toml:"endpoints"`
}

// LLM contains the model gateway connection settings and the model hierarchy.
type LLM struct {
	Provider       string   `toml:"provider"`
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Models         []string `toml:"models"`
	Referer        string   `toml:"referer"`
	Title          string   `toml:"title"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	RetryAttempts  int      `toml:"retry_attempts"`
}

// Synthesis contains prompt and output limits for document synthesis.
type Synthesis struct {
	MaxFacts     int     `toml:"max_facts"`
	MinBodyChars int     `toml:"min_body_chars"`
	Temperature  float64 `toml:"temperature"`
}

// Scheduler contains background tick settings.
type Scheduler struct {
	TickIntervalSeconds int  `toml:"tick_interval_seconds"`
	EnqueueOnStart      bool `toml:"enqueue_on_start"`
}

// Security contains the status surface credentials.
type Security struct {
	AdminToken           string `toml:"admin_token"`
	NonceSecret          string `toml:"nonce_secret"`
	NonceLifetimeSeconds int    `toml:"nonce_lifetime_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for terport.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Plugin: the deployed release version
//   - Knowledge: federated knowledge-base endpoints and query limits
//   - LLM: model gateway connection and the ordered model hierarchy
//   - Synthesis: prompt digest cap and output validation limits
//   - Scheduler: background tick interval
//   - Security: admin token and anti-forgery nonce settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Plugin        Plugin        `toml:"plugin"`
	Knowledge     Knowledge     `toml:"knowledge"`
	LLM           LLM           `toml:"llm"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Security      Security      `toml:"security"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("terport.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "terport.db")
}

// RunLockPath returns the file lock that serialises generation runs across processes.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.Paths.DataDir, "generation.lock")
}

// DaemonLockPath returns the single-instance lock for terportd.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "terportd.lock")
}

// LogFilePath returns the main log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "terport.log")
}

// QueryTimeout returns the per-call knowledge-base timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Knowledge.QueryTimeoutSeconds) * time.Second
}

// TickInterval returns the background tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSeconds) * time.Second
}

// NonceLifetime returns how long an issued anti-forgery token stays valid.
func (c *Config) NonceLifetime() time.Duration {
	return time.Duration(c.Security.NonceLifetimeSeconds) * time.Second
}

// ModelHierarchy returns a copy of the configured model preference list.
func (c *Config) ModelHierarchy() []string {
	out := make([]string, len(c.LLM.Models))
	copy(out, c.LLM.Models)
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved model gateway settings.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Referer        string
	Title          string
	TimeoutSeconds int
	RetryAttempts  int
}

// GetLLM returns the model gateway connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		RetryAttempts:  c.LLM.RetryAttempts,
	}
}

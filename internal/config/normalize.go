package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Plugin.Version = strings.TrimSpace(c.Plugin.Version)
	c.normalizeKnowledge()
	c.normalizeLLM()
	c.normalizeSynthesis()
	if c.Scheduler.TickIntervalSeconds <= 0 {
		c.Scheduler.TickIntervalSeconds = defaultTickIntervalSeconds
	}
	if err := c.normalizeSecurity(); err != nil {
		return err
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeKnowledge() {
	if c.Knowledge.QueryTimeoutSeconds <= 0 {
		c.Knowledge.QueryTimeoutSeconds = defaultQueryTimeoutSeconds
	}
	if c.Knowledge.MaxConcurrency <= 0 {
		c.Knowledge.MaxConcurrency = defaultKnowledgeConcurrency
	}
	if c.Knowledge.ResultLimit <= 0 {
		c.Knowledge.ResultLimit = defaultKnowledgeResultLimit
	}
	endpoints := make([]Endpoint, 0, len(c.Knowledge.Endpoints))
	for _, ep := range c.Knowledge.Endpoints {
		ep.Name = strings.TrimSpace(ep.Name)
		ep.URL = strings.TrimSpace(ep.URL)
		ep.AskURL = strings.TrimSpace(ep.AskURL)
		ep.DefaultGraph = strings.TrimSpace(ep.DefaultGraph)
		if ep.Name == "" && ep.URL == "" && ep.AskURL == "" {
			continue
		}
		if ep.Name == "" {
			ep.Name = ep.URL
		}
		endpoints = append(endpoints, ep)
	}
	c.Knowledge.Endpoints = endpoints
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" && c.LLM.Provider == defaultLLMProvider {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultLLMRetryAttempts
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envKeys := []string{"TERPORT_LLM_API_KEY", "OPENROUTER_API_KEY"}
		if c.LLM.Provider == "openai" {
			envKeys = []string{"TERPORT_LLM_API_KEY", "OPENAI_API_KEY"}
		}
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}

	models := make([]string, 0, len(c.LLM.Models))
	seen := make(map[string]struct{}, len(c.LLM.Models))
	for _, model := range c.LLM.Models {
		trimmed := strings.TrimSpace(model)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		models = append(models, trimmed)
	}
	c.LLM.Models = models
}

func (c *Config) normalizeSynthesis() {
	if c.Synthesis.MaxFacts <= 0 {
		c.Synthesis.MaxFacts = defaultSynthesisMaxFacts
	}
	if c.Synthesis.MinBodyChars < 0 {
		c.Synthesis.MinBodyChars = 0
	}
	if c.Synthesis.Temperature < 0 {
		c.Synthesis.Temperature = 0
	}
}

func (c *Config) normalizeSecurity() error {
	c.Security.AdminToken = strings.TrimSpace(c.Security.AdminToken)
	if c.Security.AdminToken == "" {
		if value, ok := os.LookupEnv("TERPORT_ADMIN_TOKEN"); ok {
			c.Security.AdminToken = strings.TrimSpace(value)
		}
	}
	c.Security.NonceSecret = strings.TrimSpace(c.Security.NonceSecret)
	if c.Security.NonceSecret == "" {
		if value, ok := os.LookupEnv("TERPORT_NONCE_SECRET"); ok {
			c.Security.NonceSecret = strings.TrimSpace(value)
		}
	}
	if c.Security.NonceSecret == "" {
		// Per-process secret: nonces issued before a restart stop verifying.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("security.nonce_secret: generate: %w", err)
		}
		c.Security.NonceSecret = hex.EncodeToString(buf)
	}
	if c.Security.NonceLifetimeSeconds <= 0 {
		c.Security.NonceLifetimeSeconds = defaultNonceLifetimeSeconds
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

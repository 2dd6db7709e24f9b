package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlugin(); err != nil {
		return err
	}
	if err := c.validateKnowledge(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlugin() error {
	if strings.TrimSpace(c.Plugin.Version) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("plugin.version is required. Edit %s (create with 'terport config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateKnowledge() error {
	seen := make(map[string]struct{}, len(c.Knowledge.Endpoints))
	for i, ep := range c.Knowledge.Endpoints {
		if ep.URL == "" && ep.AskURL == "" {
			return fmt.Errorf("knowledge.endpoints[%d] (%s): url or ask_url must be set", i, ep.Name)
		}
		for field, raw := range map[string]string{"url": ep.URL, "ask_url": ep.AskURL} {
			if raw == "" {
				continue
			}
			if err := validateHTTPURL(raw); err != nil {
				return fmt.Errorf("knowledge.endpoints[%d].%s: %w", i, field, err)
			}
		}
		if _, dup := seen[ep.Name]; dup {
			return fmt.Errorf("knowledge.endpoints[%d]: duplicate endpoint name %q", i, ep.Name)
		}
		seen[ep.Name] = struct{}{}
	}
	if c.Knowledge.MaxConcurrency <= 0 {
		return errors.New("knowledge.max_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (expected openrouter or openai)", c.LLM.Provider)
	}
	if len(c.LLM.Models) == 0 {
		return errors.New("llm.models must list at least one model, most capable first")
	}
	if c.LLM.BaseURL != "" {
		if err := validateHTTPURL(c.LLM.BaseURL); err != nil {
			return fmt.Errorf("llm.base_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	if c.Synthesis.MaxFacts <= 0 {
		return errors.New("synthesis.max_facts must be positive")
	}
	if c.Synthesis.Temperature > 2 {
		return errors.New("synthesis.temperature must be between 0 and 2")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

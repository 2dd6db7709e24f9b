package config

const (
	defaultConfigPath            = "~/.config/terport/config.toml"
	defaultDataDir               = "~/.local/share/terport"
	defaultLogDir                = "~/.local/share/terport/logs"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultPluginVersion         = "3.9.4"
	defaultQueryTimeoutSeconds   = 20
	defaultKnowledgeConcurrency  = 8
	defaultKnowledgeResultLimit  = 50
	defaultLLMProvider           = "openrouter"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMReferer            = "https://github.com/terport/terport"
	defaultLLMTitle              = "Terport Generator"
	defaultLLMTimeoutSeconds     = 120
	defaultLLMRetryAttempts      = 1
	defaultSynthesisMaxFacts     = 40
	defaultSynthesisMinBodyChars = 400
	defaultSynthesisTemperature  = 0.4
	defaultTickIntervalSeconds   = 900
	defaultNonceLifetimeSeconds  = 86400
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

var defaultModelHierarchy = []string{
	"anthropic/claude-sonnet-4.5",
	"openai/gpt-4.1",
	"google/gemini-2.5-flash",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	models := make([]string, len(defaultModelHierarchy))
	copy(models, defaultModelHierarchy)
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Plugin: Plugin{
			Version: defaultPluginVersion,
		},
		Knowledge: Knowledge{
			QueryTimeoutSeconds: defaultQueryTimeoutSeconds,
			MaxConcurrency:      defaultKnowledgeConcurrency,
			ResultLimit:         defaultKnowledgeResultLimit,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Models:         models,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Synthesis: Synthesis{
			MaxFacts:     defaultSynthesisMaxFacts,
			MinBodyChars: defaultSynthesisMinBodyChars,
			Temperature:  defaultSynthesisTemperature,
		},
		Scheduler: Scheduler{
			TickIntervalSeconds: defaultTickIntervalSeconds,
			EnqueueOnStart:      true,
		},
		Security: Security{
			NonceLifetimeSeconds: defaultNonceLifetimeSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

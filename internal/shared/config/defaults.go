package config

import (
	"time"

	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

const (
	DefaultProvider             = "openai"
	DefaultModel                = "gpt-4o-mini"
	DefaultMaxTokens            = 4096
	DefaultTemperature          = 0.7
	DefaultTimeout              = 5 * time.Minute
	DefaultMaxRetries           = 3
	DefaultLanguage             = "Same as the user input"
	DefaultActiveContextMinutes = 24 * 60
	DefaultMaxSteps             = 32
	DefaultMaxParallelTools     = 4
	DefaultCurrentChannel       = "Unknown Channel"
	DefaultBraveBaseURL         = "https://api.search.brave.com/res/v1"
	DefaultHistorySize          = 256
	DefaultMaxMessages          = 200
	DefaultServerAddr           = ":8080"
)

// Default returns the configuration used when no file or environment
// override is present. All capabilities are allowed.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timeout:     DefaultTimeout,
			MaxRetries:  DefaultMaxRetries,
		},
		Agent: AgentConfig{
			Language:             DefaultLanguage,
			ActiveContextMinutes: DefaultActiveContextMinutes,
			MaxSteps:             DefaultMaxSteps,
			MaxParallelTools:     DefaultMaxParallelTools,
			Capabilities:         []string{},
			Channels:             []string{},
			CurrentChannel:       DefaultCurrentChannel,
		},
		Tools: ToolsConfig{
			Brave: BraveConfig{BaseURL: DefaultBraveBaseURL},
		},
		Memory: MemoryConfig{
			Enabled:  true,
			Provider: "local",
		},
		Session: SessionConfig{
			HistorySize: DefaultHistorySize,
			MaxMessages: DefaultMaxMessages,
		},
		Server: ServerConfig{
			Addr:           DefaultServerAddr,
			AllowedOrigins: []string{"*"},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Exporter:    "otlp",
			SampleRate:  1.0,
			ServiceName: "memoh",
		},
	}
}

package llm

import (
	"net/http"
	"time"
)

// Provider names accepted by NewClient.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderMock       = "mock"
)

// Config holds provider connection settings.
type Config struct {
	Provider   string            `mapstructure:"provider" yaml:"provider"`
	Model      string            `mapstructure:"model" yaml:"model"`
	APIKey     string            `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string            `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int               `mapstructure:"max_retries" yaml:"max_retries"`
	Headers    map[string]string `mapstructure:"headers" yaml:"headers"`

	// HTTPClient overrides the transport; tests point it at httptest servers.
	HTTPClient *http.Client `mapstructure:"-" yaml:"-"`
}

const defaultTimeout = 5 * time.Minute

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

package llm

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

const defaultClientCacheSize = 16

// Factory builds provider clients and caches them per connection settings.
type Factory struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, ports.StreamingLLMClient]
	retryConfig apperrors.RetryConfig
	enableRetry bool
}

// NewFactory returns a factory with retry enabled.
func NewFactory() *Factory {
	cache, _ := lru.New[string, ports.StreamingLLMClient](defaultClientCacheSize)
	return &Factory{
		cache:       cache,
		retryConfig: apperrors.DefaultRetryConfig(),
		enableRetry: true,
	}
}

// DisableRetry turns off the retry decorator for clients built afterwards.
func (f *Factory) DisableRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enableRetry = false
}

// GetClient returns a cached client for cfg or builds a new one.
func (f *Factory) GetClient(cfg Config) (ports.StreamingLLMClient, error) {
	key := cacheKey(cfg)
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.cache.Get(key); ok {
		return client, nil
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	client = WithUsageEstimate(client)
	if f.enableRetry && normalizeProvider(cfg.Provider) != ProviderMock {
		rc := f.retryConfig
		if cfg.MaxRetries > 0 {
			rc.MaxAttempts = cfg.MaxRetries
		}
		client = NewRetryClient(client, rc)
	}
	f.cache.Add(key, client)
	return client, nil
}

// NewClient builds a bare client for cfg.Provider.
func NewClient(cfg Config) (ports.StreamingLLMClient, error) {
	provider := normalizeProvider(cfg.Provider)
	if provider != ProviderMock && strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm: model is required for provider %q", provider)
	}
	cfg.Provider = provider
	switch provider {
	case ProviderOpenAI, ProviderOpenRouter:
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderOllama:
		return NewOllamaClient(cfg)
	case ProviderMock:
		return NewMockClient(cfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func normalizeProvider(provider string) string {
	switch p := strings.ToLower(strings.TrimSpace(provider)); p {
	case "", "openai-compatible", "openai_compatible":
		return ProviderOpenAI
	case "claude":
		return ProviderAnthropic
	default:
		return p
	}
}

func cacheKey(cfg Config) string {
	return strings.Join([]string{normalizeProvider(cfg.Provider), cfg.Model, cfg.BaseURL, cfg.APIKey}, "|")
}

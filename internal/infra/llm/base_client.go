package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

const maxResponseBody = 32 << 20

type usageCallback func(usage ports.TokenUsage, model string, provider string)

// baseClient carries what every HTTP provider client shares.
type baseClient struct {
	model      string
	provider   string
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     logging.Logger

	mu            sync.RWMutex
	usageCallback usageCallback
}

func newBaseClient(provider, defaultBaseURL string, cfg Config) baseClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return baseClient{
		model:      cfg.Model,
		provider:   provider,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		headers:    cfg.Headers,
		httpClient: cfg.httpClient(),
		logger:     logging.NewComponentLogger("llm." + provider),
	}
}

func (c *baseClient) Model() string {
	return c.model
}

// SetUsageCallback implements ports.UsageTrackingClient.
func (c *baseClient) SetUsageCallback(callback func(usage ports.TokenUsage, model string, provider string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usageCallback = callback
}

func (c *baseClient) fireUsageCallback(usage ports.TokenUsage) {
	c.mu.RLock()
	cb := c.usageCallback
	c.mu.RUnlock()
	if cb != nil && !usage.IsZero() {
		cb(usage, c.model, c.provider)
	}
}

func (c *baseClient) logPrefix(meta map[string]any) string {
	if id, ok := meta["request_id"].(string); ok && id != "" {
		return fmt.Sprintf("[req:%s] ", id)
	}
	return ""
}

func (c *baseClient) doPost(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

func readResponseBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBody))
}

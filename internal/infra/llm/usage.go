package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func tokenEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens counts tokens with cl100k_base, falling back to a rune
// heuristic when the encoding cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := tokenEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return max(len([]rune(trimmed))/4, len(strings.Fields(trimmed)), 1)
}

// estimatingClient fills in token usage for providers that do not report it.
type estimatingClient struct {
	ports.StreamingLLMClient
}

// WithUsageEstimate wraps client so that responses without usage carry a
// local estimate.
func WithUsageEstimate(client ports.StreamingLLMClient) ports.StreamingLLMClient {
	return &estimatingClient{StreamingLLMClient: client}
}

func (c *estimatingClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	resp, err := c.StreamingLLMClient.Complete(ctx, req)
	return estimateUsage(req, resp), err
}

func (c *estimatingClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	resp, err := c.StreamingLLMClient.StreamComplete(ctx, req, callbacks)
	return estimateUsage(req, resp), err
}

// SetUsageCallback forwards to the wrapped client when it tracks usage.
func (c *estimatingClient) SetUsageCallback(callback func(usage ports.TokenUsage, model string, provider string)) {
	if tracking, ok := c.StreamingLLMClient.(ports.UsageTrackingClient); ok {
		tracking.SetUsageCallback(callback)
	}
}

func estimateUsage(req ports.CompletionRequest, resp *ports.CompletionResponse) *ports.CompletionResponse {
	if resp == nil || !resp.Usage.IsZero() {
		return resp
	}
	prompt := CountTokens(req.System)
	for _, msg := range req.Messages {
		prompt += CountTokens(msg.Content)
	}
	completion := CountTokens(resp.Content) + CountTokens(resp.Reasoning)
	resp.Usage = ports.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return resp
}

package llm

import (
	"context"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// retryClient wraps a client with retry on transient failures.
type retryClient struct {
	underlying  ports.StreamingLLMClient
	retryConfig apperrors.RetryConfig
	logger      logging.Logger
}

var _ ports.StreamingLLMClient = (*retryClient)(nil)

// NewRetryClient wraps client with retry logic.
func NewRetryClient(client ports.StreamingLLMClient, cfg apperrors.RetryConfig) ports.StreamingLLMClient {
	return &retryClient{
		underlying:  client,
		retryConfig: cfg,
		logger:      logging.NewComponentLogger("llm-retry"),
	}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// SetUsageCallback forwards to the wrapped client when it tracks usage.
func (c *retryClient) SetUsageCallback(callback func(usage ports.TokenUsage, model string, provider string)) {
	if tracking, ok := c.underlying.(ports.UsageTrackingClient); ok {
		tracking.SetUsageCallback(callback)
	}
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	start := time.Now()
	resp, err := apperrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return c.underlying.Complete(ctx, req)
	}, c.logger)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", time.Since(start), err)
		return nil, err
	}
	return resp, nil
}

// StreamComplete retries only while nothing has been streamed. Once a delta
// reached the caller a retry would duplicate output, so the error surfaces.
func (c *retryClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	emitted := false
	wrapped := ports.CompletionStreamCallbacks{
		OnContentDelta: func(d ports.ContentDelta) {
			if !d.Final {
				emitted = true
			}
			if callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(d)
			}
		},
		OnReasoningDelta: func(d ports.ContentDelta) {
			if !d.Final {
				emitted = true
			}
			if callbacks.OnReasoningDelta != nil {
				callbacks.OnReasoningDelta(d)
			}
		},
		OnFile: func(f ports.Attachment) {
			emitted = true
			if callbacks.OnFile != nil {
				callbacks.OnFile(f)
			}
		},
	}
	return apperrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		resp, err := c.underlying.StreamComplete(ctx, req, wrapped)
		if err != nil && emitted {
			c.logger.Debug("Stream failed after output was emitted; not retrying: %v", err)
			return nil, apperrors.NewPermanentError(err, "")
		}
		return resp, err
	}, c.logger)
}

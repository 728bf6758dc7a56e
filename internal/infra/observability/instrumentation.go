package observability

import (
	"context"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedLLMClient wraps an LLM client with spans and metrics.
type InstrumentedLLMClient struct {
	inner ports.StreamingLLMClient
	obs   *Observability
}

// NewInstrumentedLLMClient wraps client. A nil obs returns client unchanged.
func NewInstrumentedLLMClient(client ports.StreamingLLMClient, obs *Observability) ports.StreamingLLMClient {
	if obs == nil {
		return client
	}
	return &InstrumentedLLMClient{inner: client, obs: obs}
}

func (c *InstrumentedLLMClient) Model() string {
	return c.inner.Model()
}

func (c *InstrumentedLLMClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	ctx, span := c.obs.Tracer.StartSpan(ctx, SpanLLMGenerate, attribute.String(AttrModel, c.inner.Model()))
	defer span.End()

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	c.finish(ctx, span, "complete", start, resp, err)
	return resp, err
}

func (c *InstrumentedLLMClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	ctx, span := c.obs.Tracer.StartSpan(ctx, SpanLLMStream, attribute.String(AttrModel, c.inner.Model()))
	defer span.End()

	start := time.Now()
	resp, err := c.inner.StreamComplete(ctx, req, callbacks)
	c.finish(ctx, span, "stream", start, resp, err)
	return resp, err
}

func (c *InstrumentedLLMClient) finish(ctx context.Context, span trace.Span, mode string, start time.Time, resp *ports.CompletionResponse, err error) {
	latency := time.Since(start)
	model := c.inner.Model()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.obs.Logger.Warn("LLM %s request failed after %s: %v", mode, latency, err)
		c.obs.Metrics.RecordLLMRequest(ctx, model, "error", latency, 0, 0)
		return
	}
	var usage ports.TokenUsage
	if resp != nil {
		usage = resp.Usage
	}
	span.SetAttributes(LLMAttrs(model, usage.PromptTokens, usage.CompletionTokens)...)
	span.SetStatus(codes.Ok, "")
	c.obs.Metrics.RecordLLMRequest(ctx, model, "success", latency, usage.PromptTokens, usage.CompletionTokens)
}

// InstrumentedToolExecutor records one metric sample per tool call.
type InstrumentedToolExecutor struct {
	inner ports.ToolExecutor
	obs   *Observability
}

// NewInstrumentedToolExecutor wraps tools. A nil obs returns tools unchanged.
func NewInstrumentedToolExecutor(tools ports.ToolExecutor, obs *Observability) ports.ToolExecutor {
	if obs == nil || tools == nil {
		return tools
	}
	return &InstrumentedToolExecutor{inner: tools, obs: obs}
}

func (e *InstrumentedToolExecutor) Definitions() []ports.ToolDefinition {
	return e.inner.Definitions()
}

func (e *InstrumentedToolExecutor) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	start := time.Now()
	result := e.inner.Execute(ctx, call)
	status := "success"
	if result.Error != "" {
		status = "error"
	}
	e.obs.Metrics.RecordToolExecution(ctx, call.Name, status, time.Since(start))
	return result
}

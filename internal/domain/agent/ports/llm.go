package ports

import "context"

// ThinkingConfig controls provider-side reasoning.
type ThinkingConfig struct {
	Enabled      bool   `json:"enabled"`
	Effort       string `json:"effort,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// CompletionRequest contains the parameters for one model step.
type CompletionRequest struct {
	System        string
	Messages      []Message
	Tools         []ToolDefinition
	Temperature   float64
	MaxTokens     int
	TopP          float64
	StopSequences []string
	Thinking      ThinkingConfig
	Metadata      map[string]any
}

// CompletionResponse is the result of one model step.
type CompletionResponse struct {
	Content    string
	Reasoning  string
	ToolCalls  []ToolCall
	Files      []Attachment
	StopReason string
	Usage      TokenUsage
	Metadata   map[string]any
}

// ContentDelta is an incremental piece of streamed output. Final marks the
// end of a part and carries no text.
type ContentDelta struct {
	Delta string
	Final bool
}

// CompletionStreamCallbacks receive streamed output while StreamComplete runs.
// Callbacks are invoked from the calling goroutine, in provider order.
type CompletionStreamCallbacks struct {
	OnContentDelta   func(ContentDelta)
	OnReasoningDelta func(ContentDelta)
	OnFile           func(Attachment)
}

// LLMClient performs blocking completions.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// StreamingLLMClient additionally streams deltas through callbacks.
type StreamingLLMClient interface {
	LLMClient
	StreamComplete(ctx context.Context, req CompletionRequest, callbacks CompletionStreamCallbacks) (*CompletionResponse, error)
}

// UsageTrackingClient lets callers observe token usage per request.
type UsageTrackingClient interface {
	SetUsageCallback(callback func(usage TokenUsage, model string, provider string))
}

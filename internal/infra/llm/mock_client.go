package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// MockStep scripts one model response.
type MockStep struct {
	Reasoning string
	// Chunks are streamed in order; Content is the concatenation.
	Chunks    []string
	ToolCalls []ports.ToolCall
	Files     []ports.Attachment
	Err       error
}

// MockClient replays scripted steps, then echoes the last user message.
// It backs the "mock" provider used for offline demos and tests.
type MockClient struct {
	mu       sync.Mutex
	model    string
	steps    []MockStep
	requests []ports.CompletionRequest
}

var _ ports.StreamingLLMClient = (*MockClient)(nil)

// NewMockClient returns a client replaying steps.
func NewMockClient(model string, steps ...MockStep) *MockClient {
	if model == "" {
		model = "mock"
	}
	return &MockClient{model: model, steps: steps}
}

func (m *MockClient) Model() string { return m.model }

// Requests returns the requests received so far.
func (m *MockClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}

func (m *MockClient) next(req ports.CompletionRequest) MockStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.steps) > 0 {
		step := m.steps[0]
		m.steps = m.steps[1:]
		return step
	}
	return echoStep(req.Messages)
}

func echoStep(msgs []ports.Message) MockStep {
	query := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ports.RoleUser {
			query = msgs[i].Content
			break
		}
	}
	var chunks []string
	for _, word := range strings.SplitAfter("You said: "+query, " ") {
		if word != "" {
			chunks = append(chunks, word)
		}
	}
	return MockStep{Chunks: chunks}
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	return m.StreamComplete(ctx, req, ports.CompletionStreamCallbacks{})
}

func (m *MockClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	step := m.next(req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Reasoning != "" && callbacks.OnReasoningDelta != nil {
		callbacks.OnReasoningDelta(ports.ContentDelta{Delta: step.Reasoning})
		callbacks.OnReasoningDelta(ports.ContentDelta{Final: true})
	}
	for _, f := range step.Files {
		if callbacks.OnFile != nil {
			callbacks.OnFile(f)
		}
	}
	var content strings.Builder
	for _, chunk := range step.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content.WriteString(chunk)
		if callbacks.OnContentDelta != nil {
			callbacks.OnContentDelta(ports.ContentDelta{Delta: chunk})
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta(ports.ContentDelta{Final: true})
	}
	resp := &ports.CompletionResponse{
		Content:    content.String(),
		Reasoning:  step.Reasoning,
		ToolCalls:  step.ToolCalls,
		Files:      step.Files,
		StopReason: "stop",
	}
	if len(step.ToolCalls) > 0 {
		resp.StopReason = "tool_calls"
	}
	return resp, nil
}

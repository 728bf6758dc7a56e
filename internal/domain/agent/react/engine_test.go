package react

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedStep describes one model response.
type scriptedStep struct {
	reasoning []string
	text      []string
	files     []ports.Attachment
	calls     []ports.ToolCall
	err       error
	// block makes the step wait for ctx cancellation after emitting.
	block bool
}

type scriptedLLM struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []ports.CompletionRequest
	calls    atomic.Int32
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) next(req ports.CompletionRequest) scriptedStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.steps) {
		return scriptedStep{text: []string{"done"}}
	}
	return s.steps[i]
}

func (s *scriptedLLM) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	return s.StreamComplete(ctx, req, ports.CompletionStreamCallbacks{})
}

func (s *scriptedLLM) StreamComplete(ctx context.Context, req ports.CompletionRequest, cb ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	step := s.next(req)
	resp := &ports.CompletionResponse{ToolCalls: step.calls, Files: step.files, Usage: ports.TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}}
	for _, r := range step.reasoning {
		if cb.OnReasoningDelta != nil {
			cb.OnReasoningDelta(ports.ContentDelta{Delta: r})
		}
		resp.Reasoning += r
	}
	for _, f := range step.files {
		if cb.OnFile != nil {
			cb.OnFile(f)
		}
	}
	for _, t := range step.text {
		if cb.OnContentDelta != nil {
			cb.OnContentDelta(ports.ContentDelta{Delta: t})
		}
		resp.Content += t
	}
	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}
	return resp, nil
}

type fakeTools struct {
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeTools) Definitions() []ports.ToolDefinition {
	return []ports.ToolDefinition{{Name: "echo", Description: "echo back"}}
}

func (f *fakeTools) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ports.ToolResult{Error: ctx.Err().Error()}
		}
	}
	switch call.Name {
	case "echo":
		v, _ := call.Arguments["v"].(string)
		return ports.ToolResult{Content: v}
	case "attach":
		return ports.ToolResult{Content: "ok", Attachments: []ports.Attachment{ports.FileAttachment("/tmp/x")}}
	case "boom":
		panic("kaboom")
	default:
		return ports.ToolResult{Error: "unknown tool " + call.Name}
	}
}

func drain(t *testing.T, s ports.ChunkStream) ([]ports.StreamChunk, error) {
	t.Helper()
	var out []ports.StreamChunk
	for {
		c, err := s.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

func kinds(chunks []ports.StreamChunk) []ports.ChunkKind {
	out := make([]ports.ChunkKind, len(chunks))
	for i, c := range chunks {
		out[i] = c.Kind
	}
	return out
}

func TestStreamSingleStep(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{{reasoning: []string{"hmm"}, text: []string{"Hel", "lo"}}}}
	e := NewEngine(llm, Config{})

	s := e.Stream(context.Background(), TurnRequest{Messages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}}})
	defer s.Close()
	chunks, err := drain(t, s)
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []ports.ChunkKind{
		ports.ChunkReasoningStart, ports.ChunkReasoningDelta, ports.ChunkReasoningEnd,
		ports.ChunkTextStart, ports.ChunkTextDelta, ports.ChunkTextDelta, ports.ChunkTextEnd,
	}, kinds(chunks))
	assert.Equal(t, chunks[3].ID, chunks[6].ID)

	res := s.Result()
	require.NotNil(t, res)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, []string{"hmm"}, res.Reasoning)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, ports.RoleAssistant, res.Messages[0].Role)
	assert.Equal(t, 3, res.Usage.TotalTokens)
}

func TestStreamToolRoundTrip(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{
		{text: []string{"checking"}, calls: []ports.ToolCall{
			{Name: "echo", Arguments: map[string]any{"v": "a"}},
			{ID: "c2", Name: "attach"},
			{ID: "c3", Name: "missing"},
		}},
		{text: []string{"final"}},
	}}
	tools := &fakeTools{}
	e := NewEngine(llm, Config{})

	s := e.Stream(context.Background(), TurnRequest{Tools: tools, System: func() string { return "sys" }})
	defer s.Close()
	chunks, err := drain(t, s)
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []ports.ChunkKind{
		ports.ChunkTextStart, ports.ChunkTextDelta, ports.ChunkTextEnd,
		ports.ChunkToolCall, ports.ChunkToolCall, ports.ChunkToolCall,
		ports.ChunkToolResult, ports.ChunkToolResult, ports.ChunkToolResult,
		ports.ChunkTextStart, ports.ChunkTextDelta, ports.ChunkTextEnd,
	}, kinds(chunks))
	assert.NotEmpty(t, chunks[3].ToolCallID)
	assert.Equal(t, chunks[3].ToolCallID, chunks[6].ToolCallID)
	assert.Equal(t, "a", chunks[6].Output)
	assert.Equal(t, "unknown tool missing", chunks[8].Error)

	res := s.Result()
	require.NotNil(t, res)
	require.Len(t, res.Messages, 5)
	assert.Equal(t, ports.RoleTool, res.Messages[1].Role)
	assert.True(t, res.Messages[3].IsError)
	assert.Equal(t, "final", res.Text)
	assert.Equal(t, []ports.Attachment{ports.FileAttachment("/tmp/x")}, res.Attachments)
	assert.Equal(t, 6, res.Usage.TotalTokens)

	require.Len(t, llm.requests, 2)
	assert.Equal(t, "sys", llm.requests[1].System)
	assert.Len(t, llm.requests[1].Messages, 4)
	assert.Len(t, llm.requests[1].Tools, 1)
}

func TestRunMatchesStream(t *testing.T) {
	steps := []scriptedStep{
		{calls: []ports.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"v": "x"}}}},
		{text: []string{"a", "b"}},
	}
	res, err := NewEngine(&scriptedLLM{steps: steps}, Config{}).Run(context.Background(), TurnRequest{Tools: &fakeTools{}})
	require.NoError(t, err)
	assert.Equal(t, "ab", res.Text)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "x", res.Messages[1].Content)
}

func TestToolPanicBecomesError(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{{calls: []ports.ToolCall{{ID: "p", Name: "boom"}}}}}
	res, err := NewEngine(llm, Config{}).Run(context.Background(), TurnRequest{Tools: &fakeTools{}})
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.True(t, res.Messages[1].IsError)
	assert.Contains(t, res.Messages[1].Content, "kaboom")
}

func TestMaxSteps(t *testing.T) {
	loop := scriptedStep{calls: []ports.ToolCall{{ID: "c", Name: "echo"}}}
	llm := &scriptedLLM{steps: []scriptedStep{loop, loop, loop, loop}}
	res, err := NewEngine(llm, Config{MaxSteps: 2}).Run(context.Background(), TurnRequest{Tools: &fakeTools{}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, llm.calls.Load())
	assert.Len(t, res.Messages, 4)
}

func TestStreamUpstreamError(t *testing.T) {
	boom := errors.New("provider down")
	llm := &scriptedLLM{steps: []scriptedStep{{text: []string{"partial"}, err: boom}}}
	s := NewEngine(llm, Config{}).Stream(context.Background(), TurnRequest{})
	defer s.Close()

	chunks, err := drain(t, s)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []ports.ChunkKind{ports.ChunkTextStart, ports.ChunkTextDelta}, kinds(chunks))
	assert.Nil(t, s.Result())
}

func TestStreamCloseCancelsUpstream(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{{text: []string{"a", "b", "c"}, block: true}}}
	s := NewEngine(llm, Config{}).Stream(context.Background(), TurnRequest{})

	c, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ports.ChunkTextStart, c.Kind)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	require.NoError(t, s.Close())
	assert.Nil(t, s.Result())
}

func TestStreamIsPullBased(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{{text: []string{"a", "b", "c", "d"}}}}
	tools := &fakeTools{}
	s := NewEngine(llm, Config{}).Stream(context.Background(), TurnRequest{Tools: tools})
	defer s.Close()

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	// The worker is parked on the next send; nothing has finished yet.
	assert.Nil(t, s.Result())
}

func TestStreamParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &scriptedLLM{steps: []scriptedStep{{text: []string{"a"}, block: true}}}
	s := NewEngine(llm, Config{}).Stream(ctx, TurnRequest{})
	defer s.Close()

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)
	cancel()

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNextHonoursConsumerContext(t *testing.T) {
	llm := &scriptedLLM{steps: []scriptedStep{{block: true}}}
	s := NewEngine(llm, Config{}).Stream(context.Background(), TurnRequest{})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileChunk(t *testing.T) {
	img := ports.ImageAttachment("QUJD", "image/png")
	llm := &scriptedLLM{steps: []scriptedStep{{files: []ports.Attachment{img}, text: []string{"see"}}}}
	s := NewEngine(llm, Config{}).Stream(context.Background(), TurnRequest{})
	defer s.Close()
	chunks, err := drain(t, s)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, ports.ChunkFile, chunks[0].Kind)
	assert.Equal(t, img, *chunks[0].File)
	assert.Equal(t, []ports.Attachment{img}, s.Result().Messages[0].Attachments)
}

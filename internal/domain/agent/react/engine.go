package react

import (
	"context"
	"fmt"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

const (
	// DefaultMaxSteps bounds model calls per turn.
	DefaultMaxSteps = 32
	// DefaultMaxParallelTools bounds concurrently running tool calls of one step.
	DefaultMaxParallelTools = 4
)

// Config configures an Engine.
type Config struct {
	MaxSteps         int
	MaxParallelTools int
	Logger           logging.Logger
}

// Engine runs the model/tool loop of a turn. One Engine serves any number of
// concurrent turns; all per-turn state lives in the turn itself.
type Engine struct {
	llm              ports.StreamingLLMClient
	maxSteps         int
	maxParallelTools int
	logger           logging.Logger
}

// NewEngine builds an engine over llm.
func NewEngine(llm ports.StreamingLLMClient, cfg Config) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = DefaultMaxParallelTools
	}
	return &Engine{
		llm:              llm,
		maxSteps:         cfg.MaxSteps,
		maxParallelTools: cfg.MaxParallelTools,
		logger:           logging.OrNop(cfg.Logger),
	}
}

// TurnRequest is everything one turn needs.
type TurnRequest struct {
	// System is rebuilt before every step so that changes made by tools
	// (e.g. an enabled skill) reach the next model call.
	System      func() string
	Messages    []ports.Message
	Tools       ports.ToolExecutor
	Temperature float64
	MaxTokens   int
	Thinking    ports.ThinkingConfig
	Metadata    map[string]any
}

// Model returns the model the engine talks to.
func (e *Engine) Model() string {
	return e.llm.Model()
}

// Run executes the turn to completion without emitting chunks.
func (e *Engine) Run(ctx context.Context, req TurnRequest) (*ports.TurnResult, error) {
	t := &turn{engine: e, req: req}
	return t.run(ctx)
}

// Stream starts the turn in a worker goroutine and returns its chunks. The
// worker only advances as fast as the consumer pulls. Closing the stream, or
// cancelling ctx, cancels the model call and waits for the worker to exit.
func (e *Engine) Stream(ctx context.Context, req TurnRequest) ports.ChunkStream {
	return startTurnStream(ctx, func(ctx context.Context, emit emitFunc) (*ports.TurnResult, error) {
		t := &turn{engine: e, req: req, emit: emit}
		return t.run(ctx)
	})
}

func (e *Engine) stepRequest(req TurnRequest, history []ports.Message, defs []ports.ToolDefinition, step int) ports.CompletionRequest {
	system := ""
	if req.System != nil {
		system = req.System()
	}
	meta := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if id, ok := meta["request_id"].(string); ok && id != "" {
		meta["request_id"] = fmt.Sprintf("%s.%d", id, step)
	}
	return ports.CompletionRequest{
		System:      system,
		Messages:    history,
		Tools:       defs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Thinking:    req.Thinking,
		Metadata:    meta,
	}
}

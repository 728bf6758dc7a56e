package react

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// turn is the state of one run of the loop.
type turn struct {
	engine *Engine
	req    TurnRequest
	emit   emitFunc // nil when not streaming

	history []ports.Message
	result  ports.TurnResult
}

func (t *turn) run(ctx context.Context) (_ *ports.TurnResult, err error) {
	ctx, span := startSpan(ctx, traceSpanTurn, attribute.String(traceAttrModel, t.engine.Model()))
	defer func() { markSpanResult(span, err) }()

	t.history = append([]ports.Message(nil), t.req.Messages...)
	var defs []ports.ToolDefinition
	if t.req.Tools != nil {
		defs = t.req.Tools.Definitions()
	}

	for step := 0; ; step++ {
		if step >= t.engine.maxSteps {
			t.engine.logger.Warn("Turn stopped after %d steps", step)
			break
		}
		resp, err := t.step(ctx, t.engine.stepRequest(t.req, t.history, defs, step), step)
		if err != nil {
			return nil, err
		}

		assistant := ports.Message{
			Role:      ports.RoleAssistant,
			Content:   resp.Content,
			Reasoning: resp.Reasoning,
			ToolCalls: assignCallIDs(resp.ToolCalls),
		}
		if len(resp.Files) > 0 {
			assistant.Attachments = append(assistant.Attachments, resp.Files...)
		}
		t.appendMessage(assistant)
		t.result.Text = resp.Content
		t.result.Usage = t.result.Usage.Add(resp.Usage)
		if resp.Reasoning != "" {
			t.result.Reasoning = append(t.result.Reasoning, resp.Reasoning)
		}

		if len(assistant.ToolCalls) == 0 || t.req.Tools == nil {
			break
		}
		if err := t.runTools(ctx, assistant.ToolCalls); err != nil {
			return nil, err
		}
	}

	result := t.result
	return &result, nil
}

func (t *turn) appendMessage(msg ports.Message) {
	t.history = append(t.history, msg)
	t.result.Messages = append(t.result.Messages, msg)
}

// step performs one model call. While streaming, provider callbacks become
// reasoning and text chunks; each part is closed before the next one opens.
func (t *turn) step(ctx context.Context, req ports.CompletionRequest, step int) (_ *ports.CompletionResponse, err error) {
	ctx, span := startSpan(ctx, traceSpanStep, attribute.Int(traceAttrStep, step))
	defer func() { markSpanResult(span, err) }()

	if t.emit == nil {
		return t.engine.llm.Complete(ctx, req)
	}

	parts := partTracker{emit: t.emit, step: step}
	callbacks := ports.CompletionStreamCallbacks{
		OnReasoningDelta: func(d ports.ContentDelta) {
			parts.delta(ctx, partReasoning, d)
		},
		OnContentDelta: func(d ports.ContentDelta) {
			parts.delta(ctx, partText, d)
		},
		OnFile: func(file ports.Attachment) {
			parts.closeOpen(ctx)
			f := file
			_ = t.emit(ctx, ports.StreamChunk{Kind: ports.ChunkFile, File: &f})
		},
	}

	resp, err := t.engine.llm.StreamComplete(ctx, req, callbacks)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parts.closeOpen(ctx)
	if parts.err != nil {
		return nil, parts.err
	}
	return resp, nil
}

func assignCallIDs(calls []ports.ToolCall) []ports.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ports.ToolCall, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		out[i] = call
	}
	return out
}

type partKind int

const (
	partNone partKind = iota
	partReasoning
	partText
)

// partTracker turns provider deltas into start/delta/end chunk triples.
type partTracker struct {
	emit emitFunc
	step int
	open partKind
	seq  int
	err  error
}

func (p *partTracker) id() string {
	prefix := "txt"
	if p.open == partReasoning {
		prefix = "rsn"
	}
	return fmt.Sprintf("%s-%d-%d", prefix, p.step, p.seq)
}

func (p *partTracker) delta(ctx context.Context, kind partKind, d ports.ContentDelta) {
	if p.err != nil {
		return
	}
	if d.Final {
		if p.open == kind {
			p.closeOpen(ctx)
		}
		return
	}
	if d.Delta == "" {
		return
	}
	if p.open != kind {
		p.closeOpen(ctx)
		p.open = kind
		p.seq++
		start := ports.ChunkTextStart
		if kind == partReasoning {
			start = ports.ChunkReasoningStart
		}
		p.send(ctx, ports.StreamChunk{Kind: start, ID: p.id()})
	}
	deltaKind := ports.ChunkTextDelta
	if kind == partReasoning {
		deltaKind = ports.ChunkReasoningDelta
	}
	p.send(ctx, ports.StreamChunk{Kind: deltaKind, ID: p.id(), Text: d.Delta})
}

func (p *partTracker) closeOpen(ctx context.Context) {
	if p.open == partNone {
		return
	}
	end := ports.ChunkTextEnd
	if p.open == partReasoning {
		end = ports.ChunkReasoningEnd
	}
	p.send(ctx, ports.StreamChunk{Kind: end, ID: p.id()})
	p.open = partNone
}

func (p *partTracker) send(ctx context.Context, chunk ports.StreamChunk) {
	if p.err != nil {
		return
	}
	p.err = p.emit(ctx, chunk)
}

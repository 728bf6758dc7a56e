package react

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// runTools announces, executes and reports the tool calls of one step. Calls
// run concurrently; results are reported and appended in call order.
func (t *turn) runTools(ctx context.Context, calls []ports.ToolCall) error {
	for _, call := range calls {
		if err := t.send(ctx, ports.StreamChunk{
			Kind:       ports.ChunkToolCall,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Input:      call.Arguments,
		}); err != nil {
			return err
		}
	}

	results := make([]ports.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.engine.maxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = t.executeTool(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, call := range calls {
		res := results[i]
		chunk := ports.StreamChunk{
			Kind:       ports.ChunkToolResult,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Input:      call.Arguments,
			Output:     res.Content,
			Error:      res.Error,
		}
		if len(res.Metadata) > 0 {
			chunk.Metadata = res.Metadata
		}
		if err := t.send(ctx, chunk); err != nil {
			return err
		}

		content := res.Content
		if res.Error != "" {
			content = "Error: " + res.Error
		}
		t.appendMessage(ports.Message{
			Role:        ports.RoleTool,
			Content:     content,
			ToolCallID:  call.ID,
			ToolName:    call.Name,
			IsError:     res.Error != "",
			Attachments: res.Attachments,
		})
		t.result.Attachments = append(t.result.Attachments, res.Attachments...)
	}
	return nil
}

func (t *turn) executeTool(ctx context.Context, call ports.ToolCall) (result ports.ToolResult) {
	ctx, span := startSpan(ctx, traceSpanTool, attribute.String(traceAttrToolName, call.Name))
	defer func() {
		if r := recover(); r != nil {
			t.engine.logger.Error("Tool %s panicked: %v\n%s", call.Name, r, debug.Stack())
			result = ports.ToolResult{CallID: call.ID, Name: call.Name, Error: fmt.Sprintf("tool %s panicked: %v", call.Name, r)}
		}
		var err error
		if result.Error != "" {
			err = fmt.Errorf("%s", result.Error)
		}
		markSpanResult(span, err)
	}()

	result = t.req.Tools.Execute(ctx, call)
	result.CallID = call.ID
	if result.Name == "" {
		result.Name = call.Name
	}
	if result.Error != "" {
		t.engine.logger.Debug("Tool %s (%s) failed: %s", call.Name, call.ID, result.Error)
	}
	return result
}

func (t *turn) send(ctx context.Context, chunk ports.StreamChunk) error {
	if t.emit == nil {
		return nil
	}
	return t.emit(ctx, chunk)
}

package ports

import "context"

// ToolExecutor runs the tools available to one agent. Execute never fails the
// turn: problems are reported in ToolResult.Error.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, call ToolCall) ToolResult
}

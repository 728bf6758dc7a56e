package tools

import (
	"context"
	"encoding/json"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/infra/memory"
)

// MemorySearcher finds remembered turns.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]memory.Hit, error)
}

// MemoryTools returns search_memory backed by index.
func MemoryTools(index MemorySearcher) []Tool {
	return []Tool{Func{
		Def: ports.ToolDefinition{
			Name:        "search_memory",
			Description: "Search memories of earlier conversations.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"query": {Type: "string", Description: "What to look for"},
					"limit": {Type: "integer", Description: "Maximum number of memories (default 5)"},
				},
				Required: []string{"query"},
			},
		},
		Fn: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
			query := stringArg(call, "query")
			if query == "" {
				return nil, missingArg("query")
			}
			hits, err := index.Search(ctx, query, intArg(call, "limit", 5))
			if err != nil {
				return nil, err
			}
			if hits == nil {
				hits = []memory.Hit{}
			}
			data, err := json.Marshal(map[string]any{"results": hits})
			if err != nil {
				return nil, err
			}
			return &ports.ToolResult{Content: string(data)}, nil
		},
	}}
}

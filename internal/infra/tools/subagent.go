package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

// SubagentRunner asks sub the query, given its stored context, and returns
// the response messages to append to that context.
type SubagentRunner func(ctx context.Context, sub ports.Subagent, query string) ([]ports.Message, error)

// SubagentTools returns list/create/delete/query tools over store.
func SubagentTools(store session.SubagentStore, run SubagentRunner) []Tool {
	return []Tool{
		Func{
			Def: ports.ToolDefinition{
				Name:        "list_subagents",
				Description: "List subagents for current user",
				Parameters:  ports.ParameterSchema{Type: "object"},
			},
			Fn: func(ctx context.Context, _ ports.ToolCall) (*ports.ToolResult, error) {
				subs, err := store.List(ctx)
				if err != nil {
					return nil, err
				}
				type item struct {
					ID          string `json:"id"`
					Name        string `json:"name"`
					Description string `json:"description"`
				}
				items := make([]item, 0, len(subs))
				for _, s := range subs {
					items = append(items, item{ID: s.ID, Name: s.Name, Description: s.Description})
				}
				return jsonResult(map[string]any{"items": items})
			},
		},
		Func{
			Def: ports.ToolDefinition{
				Name:        "create_subagent",
				Description: "Create a new subagent",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"name":        {Type: "string", Description: "Unique subagent name"},
						"description": {Type: "string", Description: "What the subagent is for"},
					},
					Required: []string{"name", "description"},
				},
			},
			Fn: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
				name := stringArg(call, "name")
				if name == "" {
					return nil, missingArg("name")
				}
				sub, err := store.Create(ctx, name, stringArg(call, "description"))
				if errors.Is(err, session.ErrSubagentExists) {
					return nil, apperrors.NewPermanentError(err, fmt.Sprintf("A subagent named %q already exists.", name))
				}
				if err != nil {
					return nil, err
				}
				return jsonResult(map[string]any{"id": sub.ID, "name": sub.Name, "description": sub.Description})
			},
		},
		Func{
			Def: ports.ToolDefinition{
				Name:        "delete_subagent",
				Description: "Delete a subagent by id",
				Parameters: ports.ParameterSchema{
					Type:       "object",
					Properties: map[string]ports.Property{"id": {Type: "string", Description: "Subagent ID"}},
					Required:   []string{"id"},
				},
			},
			Fn: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
				id := stringArg(call, "id")
				if id == "" {
					return nil, missingArg("id")
				}
				if err := store.Delete(ctx, id); err != nil {
					return nil, notFound(err, "subagent id "+id)
				}
				return jsonResult(map[string]any{"success": true})
			},
		},
		Func{
			Def: ports.ToolDefinition{
				Name:        "query_subagent",
				Description: "Query a subagent",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"name":  {Type: "string", Description: "Subagent name"},
						"query": {Type: "string", Description: "The prompt to ask the subagent to do."},
					},
					Required: []string{"name", "query"},
				},
			},
			Fn: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
				name, query := stringArg(call, "name"), stringArg(call, "query")
				if name == "" {
					return nil, missingArg("name")
				}
				if query == "" {
					return nil, missingArg("query")
				}
				sub, err := store.FindByName(ctx, name)
				if err != nil {
					return nil, notFound(err, "subagent "+name)
				}
				msgs, err := run(ctx, sub, query)
				if err != nil {
					return nil, err
				}
				updated := append(sub.Messages, msgs...)
				if err := store.SetContext(ctx, sub.ID, updated); err != nil {
					return nil, err
				}
				result := ""
				if len(msgs) > 0 {
					result = msgs[len(msgs)-1].Content
				}
				return jsonResult(map[string]any{"success": true, "result": result})
			},
		},
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, session.ErrSubagentNotFound) {
		return apperrors.NewPermanentError(err, fmt.Sprintf("No such %s.", what))
	}
	return err
}

func jsonResult(v any) (*ports.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &ports.ToolResult{Content: string(data)}, nil
}

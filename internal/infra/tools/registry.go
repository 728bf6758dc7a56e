// Package tools holds the tool registry handed to the model loop and the
// built-in tool families.
package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// Tool is one callable tool.
type Tool interface {
	Definition() ports.ToolDefinition
	Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
}

// Func adapts a function to Tool.
type Func struct {
	Def ports.ToolDefinition
	Fn  func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
}

func (f Func) Definition() ports.ToolDefinition { return f.Def }

func (f Func) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	return f.Fn(ctx, call)
}

// Registry exposes the tools allowed by a capability set. Registering a
// tool under a capability outside the set is a no-op.
type Registry struct {
	caps   ports.Capabilities
	logger logging.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

var _ ports.ToolExecutor = (*Registry)(nil)

// NewRegistry returns an empty registry gated by caps.
func NewRegistry(caps ports.Capabilities, logger logging.Logger) *Registry {
	return &Registry{caps: caps, logger: logging.OrNop(logger), tools: map[string]Tool{}}
}

// Register adds tools under capability. It reports whether they were added.
func (r *Registry) Register(capability ports.Capability, tools ...Tool) bool {
	if !r.caps.Has(capability) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		name := t.Definition().Name
		if _, dup := r.tools[name]; dup {
			r.logger.Warn("Tool %s registered twice; keeping the latest", name)
		}
		r.tools[name] = t
	}
	return true
}

// Capabilities returns the gating set.
func (r *Registry) Capabilities() ports.Capabilities {
	return r.caps
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions implements ports.ToolExecutor.
func (r *Registry) Definitions() []ports.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute implements ports.ToolExecutor. Failures become result data.
func (r *Registry) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return ports.ToolResult{CallID: call.ID, Name: call.Name, Error: fmt.Sprintf("tool %q is not available", call.Name)}
	}

	res, err := tool.Execute(ctx, call)
	if err != nil {
		r.logger.Debug("Tool %s failed: %v", call.Name, err)
		return ports.ToolResult{CallID: call.ID, Name: call.Name, Error: apperrors.FormatForLLM(err)}
	}
	if res == nil {
		res = &ports.ToolResult{}
	}
	out := *res
	out.CallID = call.ID
	out.Name = call.Name
	return out
}

func stringArg(call ports.ToolCall, key string) string {
	v, _ := call.Arguments[key].(string)
	return strings.TrimSpace(v)
}

func intArg(call ports.ToolCall, key string, fallback int) int {
	switch v := call.Arguments[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func missingArg(name string) error {
	return apperrors.NewPermanentError(fmt.Errorf("missing argument %s", name), fmt.Sprintf("Argument %q is required.", name))
}

package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/infra/observability"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	"github.com/chiyuki0325/Memoh/internal/infra/tools"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

const (
	defaultLanguage             = "Same as the user input"
	defaultActiveContextMinutes = 24 * 60
	defaultCurrentChannel       = "Unknown Channel"
	defaultHeartbeatInterval    = 30 * time.Minute
)

// Params describes the agent and the conversation it serves.
type Params struct {
	Language string
	// ActiveContextMinutes is how far back conversation history is loaded.
	ActiveContextMinutes int
	Channels             []string
	CurrentChannel       string
	Identity             ports.Identity
	Skills               []ports.Skill
	// Capabilities names the tool families the agent may use. Empty allows
	// all of them; WithCapabilities overrides it with an explicit set.
	Capabilities []string

	Brave       tools.BraveConfig
	Temperature float64
	MaxTokens   int
	Thinking    bool

	// HeartbeatChecklist returns the agent's HEARTBEAT.md content.
	HeartbeatChecklist func() (string, error)
}

func (p Params) withDefaults() Params {
	if p.Language == "" {
		p.Language = defaultLanguage
	}
	if p.ActiveContextMinutes <= 0 {
		p.ActiveContextMinutes = defaultActiveContextMinutes
	}
	if p.CurrentChannel == "" {
		p.CurrentChannel = defaultCurrentChannel
	}
	return p
}

// MemoryIndex stores finished turns and answers search_memory.
type MemoryIndex interface {
	tools.MemorySearcher
	Remember(ctx context.Context, botID string, msgs []ports.Message) error
}

type externalTools struct {
	capability ports.Capability
	tools      []tools.Tool
}

// Option configures optional collaborators of an Agent.
type Option func(*Agent)

// WithLogger overrides the default component logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Agent) {
		if !logging.IsNil(logger) {
			a.logger = logger
		}
	}
}

// WithClock overrides time.Now for prompt timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithCapabilities fixes the allowed capability set.
func WithCapabilities(caps ports.Capabilities) Option {
	return func(a *Agent) {
		a.caps = caps
		a.capsSet = true
	}
}

// WithObservability records turn metrics and instruments tool calls.
func WithObservability(obs *observability.Observability) Option {
	return func(a *Agent) {
		a.obs = obs
	}
}

// WithMemory enables the memory capability over index.
func WithMemory(index MemoryIndex) Option {
	return func(a *Agent) {
		a.memory = index
	}
}

// WithSubagentStore enables the subagent capability over store.
func WithSubagentStore(store session.SubagentStore) Option {
	return func(a *Agent) {
		a.subagents = store
	}
}

// WithHTTPClient sets the client used by the web tools.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Agent) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithTools registers externally supplied tools under capability. They are
// offered only when the capability is allowed.
func WithTools(capability ports.Capability, ts ...tools.Tool) Option {
	return func(a *Agent) {
		a.external = append(a.external, externalTools{capability: capability, tools: ts})
	}
}

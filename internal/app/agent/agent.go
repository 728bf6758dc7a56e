// Package agent implements the agent loop: one-shot and streaming turns over
// the react engine, with directive markup stripped from everything that
// reaches conversation history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chiyuki0325/Memoh/internal/attachments"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/presets"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/react"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
	"github.com/chiyuki0325/Memoh/internal/infra/observability"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	"github.com/chiyuki0325/Memoh/internal/infra/tools"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// Turn entry points, used as the metrics "entry" label.
const (
	EntryAsk       = "ask"
	EntryStream    = "stream"
	EntrySubagent  = "subagent"
	EntrySchedule  = "schedule"
	EntryHeartbeat = "heartbeat"
)

// Agent answers queries for one configured identity. It holds no per-turn
// state and is safe for concurrent use.
type Agent struct {
	engine *react.Engine
	params Params

	caps    ports.Capabilities
	capsSet bool

	now        func() time.Time
	logger     logging.Logger
	obs        *observability.Observability
	memory     MemoryIndex
	subagents  session.SubagentStore
	httpClient *http.Client
	external   []externalTools
}

// Result is the outcome of a one-shot turn.
type Result struct {
	// Messages start with the prompt message followed by the response
	// messages, all free of directive markup.
	Messages    []ports.Message    `json:"messages"`
	Reasoning   []string           `json:"reasoning"`
	Usage       ports.TokenUsage   `json:"usage"`
	Text        string             `json:"text"`
	Attachments []ports.Attachment `json:"attachments"`
}

// New builds an agent over engine.
func New(engine *react.Engine, params Params, opts ...Option) *Agent {
	a := &Agent{
		engine:     engine,
		params:     params.withDefaults(),
		now:        time.Now,
		logger:     logging.NewComponentLogger("agent"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.capsSet {
		a.caps = ports.ParseCapabilities(a.params.Capabilities)
	}
	return a
}

// Capabilities returns the capability set tools are gated by.
func (a *Agent) Capabilities() ports.Capabilities {
	return a.caps
}

// Ask runs a turn to completion without intermediate actions.
func (a *Agent) Ask(ctx context.Context, input ports.AgentInput) (*Result, error) {
	prompt := a.userPrompt(input)
	skills := newSkillSet(a.params.Skills)
	req := a.turnRequest(EntryAsk, input.Messages, prompt, a.systemPrompt(filePaths(input), skills), a.caps, skills)

	result, err := a.runOneShot(ctx, EntryAsk, prompt, req)
	if err != nil {
		return nil, err
	}
	a.recordAttachments(ctx, result.Attachments)
	a.remember(ctx, result.Messages)
	return result, nil
}

// Stream starts a turn and returns its action sequence. Nothing runs until
// the first call to Next; the caller must Close the mapper, which cancels
// the turn if it is still running.
func (a *Agent) Stream(ctx context.Context, input ports.AgentInput) *stream.Mapper {
	prompt := a.userPrompt(input)
	skills := newSkillSet(a.params.Skills)
	req := a.turnRequest(EntryStream, input.Messages, prompt, a.systemPrompt(filePaths(input), skills), a.caps, skills)

	upstream := a.observeUpstream(ctx, EntryStream, a.engine.Stream(ctx, req))
	return stream.NewMapper(upstream, input,
		stream.WithUserPrompt(prompt),
		stream.WithSkills(skills.names),
		stream.WithObserver(a.actionObserver(ctx)),
		stream.WithLogger(a.logger),
	)
}

// SubagentInput is one query to a named subagent.
type SubagentInput struct {
	Query       string
	Name        string
	Description string
	// Messages is the subagent's persisted context.
	Messages []ports.Message
}

// AskAsSubagent answers query as the named subagent. Subagents may only use
// the web capability.
func (a *Agent) AskAsSubagent(ctx context.Context, in SubagentInput) (*Result, error) {
	prompt := ports.Message{Role: ports.RoleUser, Content: in.Query}
	system := func() string {
		return presets.SubagentSystem(in.Name, in.Description, a.now())
	}
	caps := ports.NewCapabilities()
	if a.caps.Has(ports.CapabilityWeb) {
		caps = ports.NewCapabilities(ports.CapabilityWeb)
	}
	req := a.turnRequest(EntrySubagent, in.Messages, prompt, system, caps, nil)
	return a.runOneShot(ctx, EntrySubagent, prompt, req)
}

// TriggerSchedule delivers a fired schedule to the agent.
func (a *Agent) TriggerSchedule(ctx context.Context, schedule ports.Schedule, history []ports.Message) (*Result, error) {
	prompt := ports.Message{Role: ports.RoleUser, Content: presets.Schedule(schedule, a.now())}
	skills := newSkillSet(a.params.Skills)
	req := a.turnRequest(EntrySchedule, history, prompt, a.systemPrompt(nil, skills), a.caps, skills)
	return a.runOneShot(ctx, EntrySchedule, prompt, req)
}

// HeartbeatResult is the outcome of a heartbeat check-in.
type HeartbeatResult struct {
	*Result
	// OK reports that the agent found nothing needing attention.
	OK bool `json:"ok"`
}

// TriggerHeartbeat runs a periodic check-in. interval defaults to 30 minutes.
func (a *Agent) TriggerHeartbeat(ctx context.Context, interval time.Duration, history []ports.Message) (*HeartbeatResult, error) {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	checklist := ""
	if a.params.HeartbeatChecklist != nil {
		content, err := a.params.HeartbeatChecklist()
		if err != nil {
			a.logger.Warn("Heartbeat checklist unavailable: %v", err)
		}
		checklist = content
	}
	prompt := ports.Message{Role: ports.RoleUser, Content: presets.Heartbeat(interval, a.now(), checklist)}
	skills := newSkillSet(a.params.Skills)
	req := a.turnRequest(EntryHeartbeat, history, prompt, a.systemPrompt(nil, skills), a.caps, skills)
	result, err := a.runOneShot(ctx, EntryHeartbeat, prompt, req)
	if err != nil {
		return nil, err
	}
	return &HeartbeatResult{Result: result, OK: presets.IsHeartbeatOK(result.Text)}, nil
}

func (a *Agent) runOneShot(ctx context.Context, entry string, prompt ports.Message, req react.TurnRequest) (*Result, error) {
	start := a.now()
	turn, err := a.engine.Run(ctx, req)
	if err != nil {
		a.recordFailure(ctx, entry, start, err)
		return nil, err
	}
	a.recordTurn(ctx, entry, "success", start)

	text, textAttachments := attachments.Extract(turn.Text)
	stripped, messageAttachments := attachments.StripMessages(turn.Messages)
	return &Result{
		Messages:    append([]ports.Message{prompt}, stripped...),
		Reasoning:   turn.Reasoning,
		Usage:       turn.Usage,
		Text:        text,
		Attachments: attachments.Merge(textAttachments, messageAttachments, turn.Attachments),
	}, nil
}

func (a *Agent) turnRequest(entry string, history []ports.Message, prompt ports.Message, system func() string, caps ports.Capabilities, skills *skillSet) react.TurnRequest {
	messages := make([]ports.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, msg.Clone())
	}
	messages = append(messages, prompt)

	return react.TurnRequest{
		System:      system,
		Messages:    messages,
		Tools:       observability.NewInstrumentedToolExecutor(a.registry(caps, skills), a.obs),
		Temperature: a.params.Temperature,
		MaxTokens:   a.params.MaxTokens,
		Thinking:    ports.ThinkingConfig{Enabled: a.params.Thinking},
		Metadata: map[string]any{
			"request_id": uuid.NewString(),
			"entry":      entry,
			"bot_id":     a.params.Identity.BotID,
			"session_id": a.params.Identity.SessionID,
		},
	}
}

// registry builds the tools of one turn. Only capabilities in caps get
// their tools constructed.
func (a *Agent) registry(caps ports.Capabilities, skills *skillSet) *tools.Registry {
	reg := tools.NewRegistry(caps, a.logger)
	reg.Register(ports.CapabilityWeb, tools.WebTools(a.params.Brave, a.httpClient)...)
	if a.memory != nil {
		reg.Register(ports.CapabilityMemory, tools.MemoryTools(a.memory)...)
	}
	if a.subagents != nil {
		reg.Register(ports.CapabilitySubagent, tools.SubagentTools(a.subagents, a.runSubagent)...)
	}
	if skills != nil && len(skills.available) > 0 {
		reg.Register(ports.CapabilitySkill, tools.SkillTools(skills.available, skills.enable)...)
	}
	for _, ext := range a.external {
		reg.Register(ext.capability, ext.tools...)
	}
	return reg
}

func (a *Agent) runSubagent(ctx context.Context, sub ports.Subagent, query string) ([]ports.Message, error) {
	result, err := a.AskAsSubagent(ctx, SubagentInput{
		Query:       query,
		Name:        sub.Name,
		Description: sub.Description,
		Messages:    sub.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("subagent %s: %w", sub.Name, err)
	}
	return result.Messages, nil
}

func (a *Agent) systemPrompt(files []string, skills *skillSet) func() string {
	return func() string {
		return presets.System(presets.SystemParams{
			Date:               a.now(),
			Language:           a.params.Language,
			MaxContextLoadTime: a.params.ActiveContextMinutes,
			Channels:           a.params.Channels,
			Skills:             skills.available,
			EnabledSkills:      skills.enabledSkills(),
			Attachments:        files,
		})
	}
}

func (a *Agent) userPrompt(input ports.AgentInput) ports.Message {
	text := presets.User(input.Query, presets.UserParams{
		ContactID:   a.params.Identity.ContactID,
		ContactName: a.params.Identity.ContactName,
		Channel:     a.params.CurrentChannel,
		Date:        a.now(),
		Attachments: filePaths(input),
	})
	return ports.Message{
		Role:    ports.RoleUser,
		Content: text,
		Images:  ports.Images(input.Attachments),
	}
}

func filePaths(input ports.AgentInput) []string {
	return ports.FilePaths(input.Attachments)
}

func (a *Agent) remember(ctx context.Context, msgs []ports.Message) {
	if a.memory == nil || !a.caps.Has(ports.CapabilityMemory) {
		return
	}
	if err := a.memory.Remember(ctx, a.params.Identity.BotID, msgs); err != nil {
		a.logger.Warn("Failed to index turn into memory: %v", err)
	}
}

func (a *Agent) metrics() *observability.MetricsCollector {
	if a.obs == nil {
		return nil
	}
	return a.obs.Metrics
}

func (a *Agent) recordTurn(ctx context.Context, entry, status string, start time.Time) {
	a.metrics().RecordTurn(ctx, entry, status, a.now().Sub(start))
}

func (a *Agent) recordFailure(ctx context.Context, entry string, start time.Time, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		a.recordTurn(context.WithoutCancel(ctx), entry, "canceled", start)
		return
	}
	a.recordTurn(ctx, entry, "error", start)
	a.metrics().RecordUpstreamFailure(ctx, apperrors.GetErrorType(err).String())
	a.logger.Warn("%s turn failed: %v", entry, err)
}

func (a *Agent) recordAttachments(ctx context.Context, found []ports.Attachment) {
	a.metrics().RecordAttachments(ctx, string(ports.AttachmentFile), len(ports.FilePaths(found)))
	a.metrics().RecordAttachments(ctx, string(ports.AttachmentImage), len(ports.Images(found)))
}

func (a *Agent) actionObserver(ctx context.Context) func(stream.Action) {
	return func(action stream.Action) {
		a.metrics().RecordAction(ctx, string(action.ActionType()))
		switch act := action.(type) {
		case stream.AttachmentDelta:
			a.recordAttachments(ctx, act.Attachments)
		case stream.AgentEnd:
			a.remember(context.WithoutCancel(ctx), act.Messages)
		}
	}
}

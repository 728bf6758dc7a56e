package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// ActionType is the wire discriminator of an Action.
type ActionType string

const (
	ActionAgentStart      ActionType = "agent_start"
	ActionReasoningStart  ActionType = "reasoning_start"
	ActionReasoningDelta  ActionType = "reasoning_delta"
	ActionReasoningEnd    ActionType = "reasoning_end"
	ActionTextStart       ActionType = "text_start"
	ActionTextDelta       ActionType = "text_delta"
	ActionTextEnd         ActionType = "text_end"
	ActionAttachmentDelta ActionType = "attachment_delta"
	ActionToolCallStart   ActionType = "tool_call_start"
	ActionToolCallEnd     ActionType = "tool_call_end"
	ActionImageDelta      ActionType = "image_delta"
	ActionAgentEnd        ActionType = "agent_end"
)

// Action is one element of the ordered sequence a turn produces. Every
// concrete action marshals to a JSON object carrying a "type" field.
type Action interface {
	ActionType() ActionType
}

type AgentStart struct {
	Input ports.AgentInput `json:"input"`
}

type ReasoningStart struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ReasoningDelta struct {
	Delta string `json:"delta"`
}

type ReasoningEnd struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

type TextStart struct{}

type TextDelta struct {
	Delta string `json:"delta"`
}

type TextEnd struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AttachmentDelta carries attachments recognized in the visible text.
type AttachmentDelta struct {
	Attachments []ports.Attachment `json:"attachments"`
}

type ToolCallStart struct {
	ToolName   string         `json:"toolName"`
	ToolCallID string         `json:"toolCallId"`
	Input      map[string]any `json:"input"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolCallEnd relays a tool result unmodified. A failed tool is reported
// through Error rather than by ending the stream.
type ToolCallEnd struct {
	ToolName   string         `json:"toolName"`
	ToolCallID string         `json:"toolCallId"`
	Input      map[string]any `json:"input"`
	Result     any            `json:"result"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ImageDelta struct {
	Image     string         `json:"image"`
	MediaType string         `json:"mediaType,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentEnd terminates a successful turn. Messages start with the user prompt
// followed by the response messages with directive markup removed.
type AgentEnd struct {
	Messages  []ports.Message  `json:"messages"`
	Skills    []string         `json:"skills"`
	Reasoning []string         `json:"reasoning"`
	Usage     ports.TokenUsage `json:"usage"`
}

func (AgentStart) ActionType() ActionType      { return ActionAgentStart }
func (ReasoningStart) ActionType() ActionType  { return ActionReasoningStart }
func (ReasoningDelta) ActionType() ActionType  { return ActionReasoningDelta }
func (ReasoningEnd) ActionType() ActionType    { return ActionReasoningEnd }
func (TextStart) ActionType() ActionType       { return ActionTextStart }
func (TextDelta) ActionType() ActionType       { return ActionTextDelta }
func (TextEnd) ActionType() ActionType         { return ActionTextEnd }
func (AttachmentDelta) ActionType() ActionType { return ActionAttachmentDelta }
func (ToolCallStart) ActionType() ActionType   { return ActionToolCallStart }
func (ToolCallEnd) ActionType() ActionType     { return ActionToolCallEnd }
func (ImageDelta) ActionType() ActionType      { return ActionImageDelta }
func (AgentEnd) ActionType() ActionType        { return ActionAgentEnd }

func (a AgentStart) MarshalJSON() ([]byte, error) {
	type alias AgentStart
	return marshalTagged(ActionAgentStart, alias(a))
}

func (a ReasoningStart) MarshalJSON() ([]byte, error) {
	type alias ReasoningStart
	return marshalTagged(ActionReasoningStart, alias(a))
}

func (a ReasoningDelta) MarshalJSON() ([]byte, error) {
	type alias ReasoningDelta
	return marshalTagged(ActionReasoningDelta, alias(a))
}

func (a ReasoningEnd) MarshalJSON() ([]byte, error) {
	type alias ReasoningEnd
	return marshalTagged(ActionReasoningEnd, alias(a))
}

func (a TextStart) MarshalJSON() ([]byte, error) {
	return marshalTagged(ActionTextStart, struct{}{})
}

func (a TextDelta) MarshalJSON() ([]byte, error) {
	type alias TextDelta
	return marshalTagged(ActionTextDelta, alias(a))
}

func (a TextEnd) MarshalJSON() ([]byte, error) {
	type alias TextEnd
	return marshalTagged(ActionTextEnd, alias(a))
}

func (a AttachmentDelta) MarshalJSON() ([]byte, error) {
	type alias AttachmentDelta
	return marshalTagged(ActionAttachmentDelta, alias(a))
}

func (a ToolCallStart) MarshalJSON() ([]byte, error) {
	type alias ToolCallStart
	return marshalTagged(ActionToolCallStart, alias(a))
}

func (a ToolCallEnd) MarshalJSON() ([]byte, error) {
	type alias ToolCallEnd
	return marshalTagged(ActionToolCallEnd, alias(a))
}

func (a ImageDelta) MarshalJSON() ([]byte, error) {
	type alias ImageDelta
	return marshalTagged(ActionImageDelta, alias(a))
}

func (a AgentEnd) MarshalJSON() ([]byte, error) {
	type alias AgentEnd
	if a.Skills == nil {
		a.Skills = []string{}
	}
	if a.Reasoning == nil {
		a.Reasoning = []string{}
	}
	if a.Messages == nil {
		a.Messages = []ports.Message{}
	}
	return marshalTagged(ActionAgentEnd, alias(a))
}

func marshalTagged(t ActionType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	head := `{"type":"` + string(t) + `"`
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("action %s: expected JSON object", t)
	}
	if bytes.Equal(body, []byte("{}")) {
		return []byte(head + "}"), nil
	}
	return append([]byte(head+","), body[1:]...), nil
}

// DecodeAction parses one JSON-encoded action.
func DecodeAction(data []byte) (Action, error) {
	var envelope struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	var target Action
	switch envelope.Type {
	case ActionAgentStart:
		target = &AgentStart{}
	case ActionReasoningStart:
		target = &ReasoningStart{}
	case ActionReasoningDelta:
		target = &ReasoningDelta{}
	case ActionReasoningEnd:
		target = &ReasoningEnd{}
	case ActionTextStart:
		return TextStart{}, nil
	case ActionTextDelta:
		target = &TextDelta{}
	case ActionTextEnd:
		target = &TextEnd{}
	case ActionAttachmentDelta:
		target = &AttachmentDelta{}
	case ActionToolCallStart:
		target = &ToolCallStart{}
	case ActionToolCallEnd:
		target = &ToolCallEnd{}
	case ActionImageDelta:
		target = &ImageDelta{}
	case ActionAgentEnd:
		target = &AgentEnd{}
	default:
		return nil, fmt.Errorf("decode action: unknown type %q", envelope.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
	}
	return deref(target), nil
}

func deref(a Action) Action {
	switch v := a.(type) {
	case *AgentStart:
		return *v
	case *ReasoningStart:
		return *v
	case *ReasoningDelta:
		return *v
	case *ReasoningEnd:
		return *v
	case *TextDelta:
		return *v
	case *TextEnd:
		return *v
	case *AttachmentDelta:
		return *v
	case *ToolCallStart:
		return *v
	case *ToolCallEnd:
		return *v
	case *ImageDelta:
		return *v
	case *AgentEnd:
		return *v
	}
	return a
}

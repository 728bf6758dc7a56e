package ports

import "context"

// ChunkKind enumerates the upstream events of one turn.
type ChunkKind string

const (
	ChunkReasoningStart ChunkKind = "reasoning-start"
	ChunkReasoningDelta ChunkKind = "reasoning-delta"
	ChunkReasoningEnd   ChunkKind = "reasoning-end"
	ChunkTextStart      ChunkKind = "text-start"
	ChunkTextDelta      ChunkKind = "text-delta"
	ChunkTextEnd        ChunkKind = "text-end"
	ChunkToolCall       ChunkKind = "tool-call"
	ChunkToolResult     ChunkKind = "tool-result"
	ChunkFile           ChunkKind = "file"
)

// StreamChunk is one upstream event. Which fields are set depends on Kind.
type StreamChunk struct {
	Kind       ChunkKind      `json:"type"`
	ID         string         `json:"id,omitempty"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	File       *Attachment    `json:"file,omitempty"`
	Metadata   map[string]any `json:"providerMetadata,omitempty"`
}

// TurnResult is what one finished upstream call produced.
type TurnResult struct {
	// Messages are the response messages in order, unstripped.
	Messages  []Message
	Reasoning []string
	// Text is the assistant text of the final step.
	Text  string
	Usage TokenUsage
	// Attachments were supplied out-of-band by tools.
	Attachments []Attachment
}

// ChunkStream is a pull-based upstream event source. Next returns io.EOF
// once the turn completed; Result is valid only after that. Close releases
// the upstream call and may be called at any time, more than once.
type ChunkStream interface {
	Next(ctx context.Context) (StreamChunk, error)
	Result() *TurnResult
	Close() error
}

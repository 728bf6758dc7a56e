package ports

// AgentInput is the caller-supplied part of one turn.
type AgentInput struct {
	Query       string       `json:"query"`
	Messages    []Message    `json:"messages,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Identity describes who the agent is talking to.
type Identity struct {
	BotID       string `json:"botId,omitempty" mapstructure:"bot_id" yaml:"bot_id"`
	SessionID   string `json:"sessionId,omitempty" mapstructure:"session_id" yaml:"session_id"`
	ContactID   string `json:"contactId,omitempty" mapstructure:"contact_id" yaml:"contact_id"`
	ContactName string `json:"contactName,omitempty" mapstructure:"contact_name" yaml:"contact_name"`
}

// Skill is a named block of instructions the agent can enable at runtime.
type Skill struct {
	Name        string `json:"name" mapstructure:"name" yaml:"name"`
	Description string `json:"description" mapstructure:"description" yaml:"description"`
	Content     string `json:"content" mapstructure:"content" yaml:"content"`
}

// Schedule is a recurring command delivered to the agent by a scheduler.
type Schedule struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
	MaxCalls    *int   `json:"maxCalls,omitempty"`
	Command     string `json:"command"`
}

// Subagent is a named helper agent with its own persisted context.
type Subagent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Messages    []Message `json:"messages,omitempty"`
}

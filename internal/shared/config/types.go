package config

import (
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// Config is the full runtime configuration.
type Config struct {
	LLM     LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Tools   ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Memory  MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	Session SessionConfig  `mapstructure:"session" yaml:"session"`
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string            `mapstructure:"provider" yaml:"provider"`
	Model       string            `mapstructure:"model" yaml:"model"`
	BaseURL     string            `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string            `mapstructure:"api_key" yaml:"api_key"`
	MaxTokens   int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64           `mapstructure:"temperature" yaml:"temperature"`
	Thinking    bool              `mapstructure:"thinking" yaml:"thinking"`
	Timeout     time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries" yaml:"max_retries"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

// AgentConfig shapes prompts and the turn loop.
type AgentConfig struct {
	Language             string         `mapstructure:"language" yaml:"language"`
	ActiveContextMinutes int            `mapstructure:"active_context_minutes" yaml:"active_context_minutes"`
	MaxSteps             int            `mapstructure:"max_steps" yaml:"max_steps"`
	MaxParallelTools     int            `mapstructure:"max_parallel_tools" yaml:"max_parallel_tools"`
	Capabilities         []string       `mapstructure:"capabilities" yaml:"capabilities"`
	Channels             []string       `mapstructure:"channels" yaml:"channels"`
	CurrentChannel       string         `mapstructure:"current_channel" yaml:"current_channel"`
	Identity             ports.Identity `mapstructure:"identity" yaml:"identity"`
	Skills               []ports.Skill  `mapstructure:"skills" yaml:"skills,omitempty"`
	// HeartbeatFile is read for the heartbeat checklist when set.
	HeartbeatFile string `mapstructure:"heartbeat_file" yaml:"heartbeat_file,omitempty"`
}

// ToolsConfig configures built-in tools.
type ToolsConfig struct {
	Brave BraveConfig `mapstructure:"brave" yaml:"brave"`
}

type BraveConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// MemoryConfig configures the memory index.
type MemoryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Provider    string `mapstructure:"provider" yaml:"provider"` // local, openai, ollama, openai-compatible
	Model       string `mapstructure:"model" yaml:"model"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	PersistPath string `mapstructure:"persist_path" yaml:"persist_path"`
}

// SessionConfig bounds the in-memory conversation store.
type SessionConfig struct {
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
	MaxMessages int `mapstructure:"max_messages" yaml:"max_messages"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// EnvLookup resolves an environment variable.
type EnvLookup func(string) (string, bool)

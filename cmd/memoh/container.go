package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/chiyuki0325/Memoh/internal/app/agent"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/react"
	"github.com/chiyuki0325/Memoh/internal/infra/llm"
	"github.com/chiyuki0325/Memoh/internal/infra/memory"
	"github.com/chiyuki0325/Memoh/internal/infra/observability"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	"github.com/chiyuki0325/Memoh/internal/infra/tools"
	"github.com/chiyuki0325/Memoh/internal/shared/config"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// Container holds the wired runtime shared by every command.
type Container struct {
	Config  config.Config
	Meta    config.Metadata
	Logger  logging.Logger
	Obs     *observability.Observability
	Agent   *agent.Agent
	History *session.HistoryStore
	Memory  *memory.Index

	zap *zap.Logger
}

func buildContainer(configPath string) (*Container, error) {
	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	return newContainer(cfg, meta)
}

func newContainer(cfg config.Config, meta config.Metadata) (*Container, error) {
	report := config.Validate(cfg)
	if report.HasErrors() {
		return nil, fmt.Errorf("invalid configuration (%s): %s", meta.Path, formatIssues(report.Errors))
	}

	zl, err := logging.Install(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := logging.FromZap(zl, "Container")
	for _, w := range report.Warnings {
		logger.Warn("config %s: %s", w.ID, w.Message)
	}

	obs := observability.New(observabilityConfig(cfg), logging.FromZap(zl, "Observability"))

	client, err := llm.NewFactory().GetClient(llmConfig(cfg))
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	client = observability.NewInstrumentedLLMClient(client, obs)

	engine := react.NewEngine(client, react.Config{
		MaxSteps:         cfg.Agent.MaxSteps,
		MaxParallelTools: cfg.Agent.MaxParallelTools,
		Logger:           logging.FromZap(zl, "Engine"),
	})

	c := &Container{
		Config:  cfg,
		Meta:    meta,
		Logger:  logger,
		Obs:     obs,
		History: session.NewHistoryStore(cfg.Session.HistorySize, cfg.Session.MaxMessages),
		zap:     zl,
	}

	opts := []agent.Option{
		agent.WithLogger(logging.FromZap(zl, "Agent")),
		agent.WithObservability(obs),
		agent.WithSubagentStore(session.NewMemorySubagentStore()),
		agent.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
	}
	if cfg.Memory.Enabled {
		index, err := newMemoryIndex(cfg.Memory)
		if err != nil {
			logger.Warn("memory disabled: %v", err)
		} else {
			c.Memory = index
			opts = append(opts, agent.WithMemory(index))
		}
	}

	c.Agent = agent.New(engine, agentParams(cfg), opts...)
	logger.Info("ready: provider=%s model=%s capabilities=%v config=%s (%s)",
		cfg.LLM.Provider, cfg.LLM.Model, c.Agent.Capabilities().List(), meta.Path, meta.PathSource)
	return c, nil
}

// Cleanup flushes telemetry and logs.
func (c *Container) Cleanup() error {
	var errs []error
	if c.Obs != nil {
		errs = append(errs, c.Obs.Shutdown(context.Background()))
	}
	if c.zap != nil {
		// Sync on a terminal stderr reports EINVAL; nothing was lost.
		_ = c.zap.Sync()
	}
	return errors.Join(errs...)
}

func formatIssues(issues []config.ValidationIssue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		part := issue.ID + ": " + issue.Message
		if issue.Hint != "" {
			part += " (" + issue.Hint + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func newMemoryIndex(cfg config.MemoryConfig) (*memory.Index, error) {
	embed, err := memory.NewEmbeddingFunc(memory.EmbeddingConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return memory.NewIndex(embed, expandHome(cfg.PersistPath))
}

func llmConfig(cfg config.Config) llm.Config {
	return llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Headers:    cfg.LLM.Headers,
	}
}

func observabilityConfig(cfg config.Config) observability.Config {
	out := observability.DefaultConfig()
	out.Metrics.Enabled = cfg.Metrics.Enabled
	out.Metrics.Addr = cfg.Metrics.Addr
	out.Tracing.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		out.Tracing.Exporter = cfg.Tracing.Exporter
	}
	out.Tracing.Endpoint = cfg.Tracing.Endpoint
	if cfg.Tracing.SampleRate > 0 {
		out.Tracing.SampleRate = cfg.Tracing.SampleRate
	}
	if cfg.Tracing.ServiceName != "" {
		out.Tracing.ServiceName = cfg.Tracing.ServiceName
	}
	return out
}

func agentParams(cfg config.Config) agent.Params {
	params := agent.Params{
		Language:             cfg.Agent.Language,
		ActiveContextMinutes: cfg.Agent.ActiveContextMinutes,
		Channels:             cfg.Agent.Channels,
		CurrentChannel:       cfg.Agent.CurrentChannel,
		Identity:             cfg.Agent.Identity,
		Skills:               cfg.Agent.Skills,
		Capabilities:         cfg.Agent.Capabilities,
		Brave:                tools.BraveConfig{APIKey: cfg.Tools.Brave.APIKey, BaseURL: cfg.Tools.Brave.BaseURL},
		Temperature:          cfg.LLM.Temperature,
		MaxTokens:            cfg.LLM.MaxTokens,
		Thinking:             cfg.LLM.Thinking,
	}
	if path := strings.TrimSpace(cfg.Agent.HeartbeatFile); path != "" {
		params.HeartbeatChecklist = func() (string, error) {
			data, err := os.ReadFile(expandHome(path))
			if errors.Is(err, os.ErrNotExist) {
				return "", nil
			}
			return string(data), err
		}
	}
	return params
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

func newInput(query string, history []ports.Message) ports.AgentInput {
	return ports.AgentInput{Query: query, Messages: history}
}

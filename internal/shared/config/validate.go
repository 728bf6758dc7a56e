package config

import (
	"slices"
	"strings"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	ID      string
	Message string
	Hint    string
}

// ValidationReport summarizes configuration findings.
type ValidationReport struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// HasErrors reports whether the report contains blocking errors.
func (r ValidationReport) HasErrors() bool {
	return len(r.Errors) > 0
}

// ProviderRequiresAPIKey reports whether the provider needs an API key.
func ProviderRequiresAPIKey(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "mock", "ollama":
		return false
	default:
		return true
	}
}

// Validate checks cfg for settings that would fail at first use.
func Validate(cfg Config) ValidationReport {
	var report ValidationReport

	if strings.TrimSpace(cfg.LLM.Model) == "" {
		report.Errors = append(report.Errors, ValidationIssue{
			ID:      "llm.model",
			Message: "no model configured",
			Hint:    "set llm.model or MEMOH_LLM_MODEL",
		})
	}
	if ProviderRequiresAPIKey(cfg.LLM.Provider) && strings.TrimSpace(cfg.LLM.APIKey) == "" {
		report.Errors = append(report.Errors, ValidationIssue{
			ID:      "llm.api_key",
			Message: "provider " + cfg.LLM.Provider + " requires an API key",
			Hint:    "set llm.api_key or MEMOH_LLM_API_KEY, or run `memoh setup`",
		})
	}
	if cfg.Agent.MaxSteps < 0 {
		report.Errors = append(report.Errors, ValidationIssue{
			ID:      "agent.max_steps",
			Message: "max_steps must not be negative",
		})
	}

	for _, name := range cfg.Agent.Capabilities {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && !slices.Contains(ports.KnownCapabilities, ports.Capability(name)) {
			report.Warnings = append(report.Warnings, ValidationIssue{
				ID:      "agent.capabilities",
				Message: "capability " + name + " only gates externally registered tools",
			})
		}
	}
	if strings.TrimSpace(cfg.Tools.Brave.APIKey) == "" {
		report.Warnings = append(report.Warnings, ValidationIssue{
			ID:      "tools.brave.api_key",
			Message: "web_search is disabled without a Brave API key",
			Hint:    "set tools.brave.api_key or MEMOH_TOOLS_BRAVE_API_KEY",
		})
	}
	return report
}

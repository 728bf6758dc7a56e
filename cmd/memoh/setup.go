package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/chiyuki0325/Memoh/internal/infra/llm"
	"github.com/chiyuki0325/Memoh/internal/shared/config"
)

var setupProviders = []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOpenRouter, llm.ProviderOllama, llm.ProviderMock}

var setupDefaultModels = map[string]string{
	llm.ProviderOpenAI:     "gpt-4o-mini",
	llm.ProviderAnthropic:  "claude-3-5-sonnet-latest",
	llm.ProviderOpenRouter: "openai/gpt-4o-mini",
	llm.ProviderOllama:     "llama3.1",
	llm.ProviderMock:       "mock",
}

func newSetupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively write a config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTTY() {
				return errors.New("setup needs an interactive terminal")
			}
			return runSetup(opts)
		},
	}
}

func runSetup(opts *rootOptions) error {
	cfg, meta, err := loadConfig(opts)
	if err != nil {
		fmt.Printf("%s existing config unreadable (%v), starting from defaults\n", yellow("!"), err)
		cfg = config.Default()
	}

	provider, err := selectProvider(cfg.LLM.Provider)
	if err != nil {
		return err
	}
	if provider != cfg.LLM.Provider {
		cfg.LLM.Model = setupDefaultModels[provider]
		cfg.LLM.BaseURL = ""
	}
	cfg.LLM.Provider = provider

	if cfg.LLM.Model, err = promptText("Model", cfg.LLM.Model, required); err != nil {
		return err
	}
	if config.ProviderRequiresAPIKey(provider) {
		if cfg.LLM.APIKey, err = promptSecret("API key", cfg.LLM.APIKey); err != nil {
			return err
		}
	}
	if provider != llm.ProviderMock {
		if cfg.LLM.BaseURL, err = promptText("Base URL (empty for the provider default)", cfg.LLM.BaseURL, nil); err != nil {
			return err
		}
	}
	if cfg.Tools.Brave.APIKey, err = promptSecret("Brave Search API key (optional)", cfg.Tools.Brave.APIKey); err != nil {
		return err
	}
	if cfg.Memory.Enabled, err = confirm("Enable long-term memory", cfg.Memory.Enabled); err != nil {
		return err
	}

	report := config.Validate(cfg)
	if report.HasErrors() {
		return fmt.Errorf("config not saved: %s", formatIssues(report.Errors))
	}
	if err := config.Save(cfg, meta.Path); err != nil {
		return err
	}
	fmt.Printf("%s wrote %s\n", green("✓"), meta.Path)
	return nil
}

func selectProvider(current string) (string, error) {
	cursor := 0
	for i, p := range setupProviders {
		if p == current {
			cursor = i
		}
	}
	sel := promptui.Select{
		Label:     "Provider",
		Items:     setupProviders,
		CursorPos: cursor,
	}
	_, provider, err := sel.Run()
	return provider, err
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func promptText(label, def string, validate promptui.ValidateFunc) (string, error) {
	p := promptui.Prompt{Label: label, Default: def, AllowEdit: true, Validate: validate}
	out, err := p.Run()
	return strings.TrimSpace(out), err
}

// promptSecret keeps the current value when the input is left empty.
func promptSecret(label, current string) (string, error) {
	if current != "" {
		label += " (leave empty to keep)"
	}
	p := promptui.Prompt{Label: label, Mask: '*'}
	out, err := p.Run()
	if err != nil {
		return current, err
	}
	if out = strings.TrimSpace(out); out == "" {
		return current, nil
	}
	return out, nil
}

func confirm(label string, def bool) (bool, error) {
	defLabel := "n"
	if def {
		defLabel = "y"
	}
	p := promptui.Prompt{Label: label + " [y/n]", Default: defLabel, AllowEdit: true}
	out, err := p.Run()
	if err != nil {
		return def, err
	}
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, nil
	}
}

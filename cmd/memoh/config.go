package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chiyuki0325/Memoh/internal/shared/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg, meta)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Report configuration problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

func loadConfig(opts *rootOptions) (config.Config, config.Metadata, error) {
	var loadOpts []config.Option
	if opts.configPath != "" {
		loadOpts = append(loadOpts, config.WithConfigPath(opts.configPath))
	}
	return config.Load(loadOpts...)
}

func showConfig(w io.Writer, cfg config.Config, meta config.Metadata) error {
	cfg.LLM.APIKey = redact(cfg.LLM.APIKey)
	cfg.Memory.APIKey = redact(cfg.Memory.APIKey)
	cfg.Tools.Brave.APIKey = redact(cfg.Tools.Brave.APIKey)
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	loaded := "not found, defaults and environment only"
	if meta.FileLoaded {
		loaded = "loaded"
	}
	fmt.Fprintf(w, "%s %s (%s, %s)\n\n", gray("#"), meta.Path, meta.PathSource, loaded)
	_, err = w.Write(data)
	return err
}

func validateConfig(w io.Writer, cfg config.Config) error {
	report := config.Validate(cfg)
	for _, issue := range report.Errors {
		fmt.Fprintf(w, "%s %s: %s\n", red("error"), issue.ID, issue.Message)
		if issue.Hint != "" {
			fmt.Fprintf(w, "      %s\n", gray(issue.Hint))
		}
	}
	for _, issue := range report.Warnings {
		fmt.Fprintf(w, "%s %s: %s\n", yellow("warn"), issue.ID, issue.Message)
	}
	if report.HasErrors() {
		return fmt.Errorf("%d configuration error(s)", len(report.Errors))
	}
	if len(report.Warnings) == 0 {
		fmt.Fprintf(w, "%s configuration ok\n", green("✓"))
	}
	return nil
}

func redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "…" + secret[len(secret)-2:]
	}
}

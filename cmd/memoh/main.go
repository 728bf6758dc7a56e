package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether both stdin and stdout are terminals.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type rootOptions struct {
	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "memoh",
		Short: "Memoh agent: streaming LLM turns with attachments, tools and memory",
		Long: fmt.Sprintf(`%s

Runs agent turns against an LLM provider, turning the model's raw stream
into typed actions and lifting <attachments> blocks out of the text.

%s
  memoh "summarize today's notes"   # one-shot ask
  memoh chat                        # line-based conversation
  memoh tui                         # full-screen conversation
  memoh serve                       # HTTP, SSE and WebSocket API
  memoh extract reply.md --diff     # inspect attachment extraction
  memoh setup                       # write a config file`,
			bold("memoh"), bold("EXAMPLES:")),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return runAsk(cmd.Context(), opts, strings.Join(args, " "), askFlags{render: true})
			}
			if !isTTY() {
				return cmd.Help()
			}
			return runTUI(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $MEMOH_CONFIG_PATH or ~/.memoh/config.yaml)")

	root.AddCommand(
		newAskCommand(opts),
		newChatCommand(opts),
		newTUICommand(opts),
		newServeCommand(opts),
		newExtractCommand(),
		newSetupCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const chatConversation = "cli"

func newChatCommand(opts *rootOptions) *cobra.Command {
	var noStream bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-based conversation with history and live output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, !noStream)
		},
	}
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for each answer and render it as markdown")
	return cmd
}

func runChat(ctx context.Context, opts *rootOptions, live bool) error {
	c, err := buildContainer(opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = c.Cleanup() }()

	fmt.Println(bold("Memoh chat"))
	fmt.Println(gray("Type a message and press Enter. /reset clears the conversation, /exit quits."))
	fmt.Println()

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".memoh", "chat_history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("> "),
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		UniqueEditLine:    true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			c.History.Reset(chatConversation)
			fmt.Println(gray("conversation cleared"))
			continue
		}

		if err := chatTurn(ctx, c, line, live); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("%s %v\n\n", red("Error:"), err)
		}
	}
}

// chatTurn runs one turn and appends it to the CLI conversation.
func chatTurn(ctx context.Context, c *Container, query string, live bool) error {
	input := newInput(query, c.History.Get(chatConversation))

	if !live {
		res, err := c.Agent.Ask(ctx, input)
		if err != nil {
			return err
		}
		c.History.Append(chatConversation, res.Messages...)
		fmt.Println(renderCompact(res.Text))
		printAttachments(os.Stdout, res.Attachments)
		return nil
	}

	end, err := printActions(ctx, c.Agent.Stream(ctx, input), newActionPrinter(os.Stdout))
	if err != nil {
		return err
	}
	if end != nil {
		c.History.Append(chatConversation, end.Messages...)
		fmt.Printf("%s\n\n", gray(fmt.Sprintf("%d in / %d out tokens", end.Usage.PromptTokens, end.Usage.CompletionTokens)))
	}
	return nil
}

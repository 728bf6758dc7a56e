package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
)

type askFlags struct {
	stream bool
	json   bool
	render bool
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var flags askFlags
	var plain bool
	cmd := &cobra.Command{
		Use:   "ask <query...>",
		Short: "Run one turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.render = !plain && isTTY()
			return runAsk(cmd.Context(), opts, strings.Join(args, " "), flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.stream, "stream", "s", false, "print actions as they arrive")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the result (or each action with --stream) as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "do not render markdown")
	return cmd
}

func runAsk(ctx context.Context, opts *rootOptions, query string, flags askFlags) error {
	c, err := buildContainer(opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = c.Cleanup() }()

	input := newInput(query, nil)
	if flags.stream {
		mapper := c.Agent.Stream(ctx, input)
		if flags.json {
			return writeActionsJSON(ctx, mapper, os.Stdout)
		}
		_, err := printActions(ctx, mapper, newActionPrinter(os.Stdout))
		return err
	}

	res, err := c.Agent.Ask(ctx, input)
	if err != nil {
		return err
	}
	if flags.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	text := res.Text
	if flags.render {
		if r, err := newMarkdownRenderer(false); err == nil {
			text = r.render(text)
		}
	}
	fmt.Println(strings.TrimRight(text, "\n"))
	printAttachments(os.Stdout, res.Attachments)
	return nil
}

// printActions drains mapper into p and returns the final agent_end.
func printActions(ctx context.Context, mapper *stream.Mapper, p *actionPrinter) (*stream.AgentEnd, error) {
	defer mapper.Close()
	var end *stream.AgentEnd
	for action, err := range mapper.All(ctx) {
		if err != nil {
			p.finish()
			return end, err
		}
		if e, ok := action.(stream.AgentEnd); ok {
			end = &e
		}
		p.print(action)
	}
	p.finish()
	return end, nil
}

func writeActionsJSON(ctx context.Context, mapper *stream.Mapper, w io.Writer) error {
	defer mapper.Close()
	enc := json.NewEncoder(w)
	for {
		action, err := mapper.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(action); err != nil {
			return err
		}
	}
}

// actionPrinter writes a live transcript of a turn.
type actionPrinter struct {
	w           io.Writer
	inReasoning bool
	attachments []ports.Attachment
}

func newActionPrinter(w io.Writer) *actionPrinter {
	return &actionPrinter{w: w}
}

func (p *actionPrinter) print(action stream.Action) {
	switch a := action.(type) {
	case stream.ReasoningStart:
		p.inReasoning = true
	case stream.ReasoningDelta:
		fmt.Fprint(p.w, gray(a.Delta))
	case stream.ReasoningEnd:
		p.inReasoning = false
		fmt.Fprintln(p.w)
	case stream.TextDelta:
		fmt.Fprint(p.w, a.Delta)
	case stream.TextEnd:
		fmt.Fprintln(p.w)
	case stream.AttachmentDelta:
		p.attachments = append(p.attachments, a.Attachments...)
	case stream.ToolCallStart:
		fmt.Fprintf(p.w, "%s %s %s\n", cyan("→"), a.ToolName, gray(compactJSON(a.Input)))
	case stream.ToolCallEnd:
		if a.Error != "" {
			fmt.Fprintf(p.w, "%s %s %s\n", red("✗"), a.ToolName, a.Error)
		} else {
			fmt.Fprintf(p.w, "%s %s\n", green("✓"), a.ToolName)
		}
	case stream.ImageDelta:
		fmt.Fprintf(p.w, "%s image (%s)\n", yellow("▣"), a.MediaType)
	}
}

func (p *actionPrinter) finish() {
	if p.inReasoning {
		fmt.Fprintln(p.w)
		p.inReasoning = false
	}
	printAttachments(p.w, p.attachments)
	p.attachments = nil
}

func printAttachments(w io.Writer, list []ports.Attachment) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintln(w, yellow("Attachments:"))
	for _, att := range list {
		fmt.Fprintf(w, "  %s\n", describeAttachment(att))
	}
}

func describeAttachment(att ports.Attachment) string {
	if att.Type == ports.AttachmentImage {
		size := len(att.Base64)
		if att.MediaType != "" {
			return fmt.Sprintf("image %s (%d bytes encoded)", att.MediaType, size)
		}
		return fmt.Sprintf("image (%d bytes encoded)", size)
	}
	return att.Path
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	const limit = 120
	if len(data) > limit {
		return string(data[:limit]) + "…"
	}
	return string(data)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
)

const tuiConversation = "tui"

var (
	tuiTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	tuiUserStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	tuiReasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	tuiToolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))
	tuiAttachStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	tuiErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	tuiStatusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newTUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full-screen conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	c, err := buildContainer(opts.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = c.Cleanup() }()

	_, err = tea.NewProgram(newTUIModel(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// actionMsg carries one pulled action into the update loop.
type actionMsg struct {
	action stream.Action
	err    error
	done   bool
}

type tuiModel struct {
	ctx context.Context
	c   *Container

	input    textarea.Model
	view     viewport.Model
	spin     spinner.Model
	renderer *markdownRenderer

	lines     []string
	pending   strings.Builder
	reasoning strings.Builder

	mapper *stream.Mapper
	turn   context.Context
	cancel context.CancelFunc
	status string
	ready  bool
}

func newTUIModel(ctx context.Context, c *Container) *tuiModel {
	ta := textarea.New()
	ta.Placeholder = "Ask something…"
	ta.Prompt = "┃ "
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	r, _ := newMarkdownRenderer(false)
	return &tuiModel{
		ctx:      ctx,
		c:        c,
		input:    ta,
		view:     viewport.New(80, 20),
		spin:     sp,
		renderer: r,
		status:   "enter to send · ctrl+c to stop a reply or quit",
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.input.SetWidth(msg.Width)
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-m.input.Height()-3, 3)
		m.ready = true
		m.refresh()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.mapper != nil {
				// The pending pull returns with the cancellation and ends the turn.
				m.cancel()
				m.status = "stopping"
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.mapper == nil {
				if cmd := m.submit(); cmd != nil {
					return m, cmd
				}
			}
			return m, nil
		}
	case actionMsg:
		return m, m.handleAction(msg)
	case spinner.TickMsg:
		if m.mapper == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *tuiModel) View() string {
	if !m.ready {
		return "loading…"
	}
	status := tuiStatusStyle.Render(m.status)
	if m.mapper != nil {
		status = m.spin.View() + " " + status
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		tuiTitleStyle.Render("Memoh · "+m.c.Config.LLM.Model),
		m.view.View(),
		status,
		m.input.View(),
	)
}

func (m *tuiModel) submit() tea.Cmd {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return nil
	}
	m.input.Reset()
	if query == "/reset" {
		m.c.History.Reset(tuiConversation)
		m.lines = nil
		m.refresh()
		return nil
	}

	m.lines = append(m.lines, tuiUserStyle.Render("you › ")+query)
	m.turn, m.cancel = context.WithCancel(m.ctx)
	m.mapper = m.c.Agent.Stream(m.turn, newInput(query, m.c.History.Get(tuiConversation)))
	m.status = "thinking"
	m.refresh()
	return tea.Batch(m.spin.Tick, m.pull())
}

// pull asks the mapper for the next action off the update goroutine. At most
// one pull is in flight, and the mapper is only closed once it returned.
func (m *tuiModel) pull() tea.Cmd {
	mapper, ctx := m.mapper, m.turn
	return func() tea.Msg {
		action, err := mapper.Next(ctx)
		if errors.Is(err, io.EOF) {
			return actionMsg{done: true}
		}
		return actionMsg{action: action, err: err}
	}
}

func (m *tuiModel) handleAction(msg actionMsg) tea.Cmd {
	if m.mapper == nil {
		return nil
	}
	switch {
	case msg.done:
		m.endTurn("done")
		return nil
	case msg.err != nil:
		if m.turn.Err() != nil {
			m.endTurn("stopped")
			return nil
		}
		m.lines = append(m.lines, tuiErrorStyle.Render("error: "+msg.err.Error()))
		m.endTurn("failed")
		return nil
	}

	switch a := msg.action.(type) {
	case stream.ReasoningDelta:
		m.reasoning.WriteString(a.Delta)
		m.status = "reasoning"
	case stream.ReasoningEnd:
		m.flushReasoning()
	case stream.TextDelta:
		m.pending.WriteString(a.Delta)
		m.status = "writing"
	case stream.TextEnd:
		m.flushText()
	case stream.ToolCallStart:
		m.lines = append(m.lines, tuiToolStyle.Render("→ "+a.ToolName+" "+compactJSON(a.Input)))
		m.status = "running " + a.ToolName
	case stream.ToolCallEnd:
		mark := "✓ "
		if a.Error != "" {
			mark = "✗ "
		}
		m.lines = append(m.lines, tuiToolStyle.Render(mark+a.ToolName))
	case stream.AttachmentDelta:
		for _, att := range a.Attachments {
			m.lines = append(m.lines, tuiAttachStyle.Render("📎 "+describeAttachment(att)))
		}
	case stream.ImageDelta:
		m.lines = append(m.lines, tuiAttachStyle.Render("▣ image "+a.MediaType))
	case stream.AgentEnd:
		m.c.History.Append(tuiConversation, a.Messages...)
		m.status = fmt.Sprintf("%d in / %d out tokens", a.Usage.PromptTokens, a.Usage.CompletionTokens)
	}
	m.refresh()
	return m.pull()
}

func (m *tuiModel) flushReasoning() {
	if m.reasoning.Len() > 0 {
		m.lines = append(m.lines, tuiReasoningStyle.Render(strings.TrimSpace(m.reasoning.String())))
		m.reasoning.Reset()
	}
}

func (m *tuiModel) flushText() {
	if m.pending.Len() > 0 {
		m.lines = append(m.lines, strings.TrimRight(m.renderer.render(m.pending.String()), "\n"))
		m.pending.Reset()
	}
}

func (m *tuiModel) endTurn(status string) {
	if m.mapper != nil {
		_ = m.mapper.Close()
		m.cancel()
		m.mapper = nil
	}
	m.flushReasoning()
	m.flushText()
	// A completed turn keeps the usage line set by agent_end.
	if status != "done" {
		m.status = status
	}
	m.refresh()
}

func (m *tuiModel) refresh() {
	content := strings.Join(m.lines, "\n\n")
	if m.reasoning.Len() > 0 {
		content += "\n\n" + tuiReasoningStyle.Render(m.reasoning.String())
	}
	if m.pending.Len() > 0 {
		content += "\n\n" + m.pending.String()
	}
	m.view.SetContent(lipgloss.NewStyle().Width(m.view.Width).Render(content))
	m.view.GotoBottom()
}

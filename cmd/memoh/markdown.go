package main

import (
	"fmt"
	"os"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const maxRenderWidth = 120

func terminalWidth() int {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w-4, maxRenderWidth)
	}
	return width
}

// markdownRenderer renders final answers with glamour.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer(plain bool) (*markdownRenderer, error) {
	style := glamour.WithStandardStyle("dark")
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(terminalWidth()), glamour.WithEmoji())
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &markdownRenderer{renderer: r}, nil
}

// render returns content unchanged when it does not look like markdown or
// rendering fails.
func (m *markdownRenderer) render(content string) string {
	if m == nil || !looksLikeMarkdown(content) {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// renderCompact is used by the line-based chat, where glamour's margins
// waste too much space.
func renderCompact(content string) string {
	return string(markdown.Render(content, terminalWidth(), 2))
}

func looksLikeMarkdown(content string) bool {
	content = strings.TrimSpace(content)
	if len(content) < 10 {
		return false
	}
	for _, indicator := range []string{"# ", "```", "- ", "* ", "1. ", "![", "|---", "**", "> "} {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return strings.Contains(content, "](") || strings.Count(content, "`") >= 2
}

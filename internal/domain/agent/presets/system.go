package presets

import (
	"fmt"
	"strings"
	"time"

	"github.com/chiyuki0325/Memoh/internal/attachments"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// SystemParams configures the main agent system prompt.
type SystemParams struct {
	Date time.Time
	// Language the agent replies in.
	Language string
	// MaxContextLoadTime is how far back, in minutes, history is loaded.
	MaxContextLoadTime int
	Channels           []string
	Skills             []ports.Skill
	EnabledSkills      []ports.Skill
	// Attachments are workspace paths of files the user sent this turn.
	Attachments []string
}

type systemHeader struct {
	Language           string `yaml:"language"`
	AvailableChannels  string `yaml:"available-channels"`
	MaxContextLoadTime int    `yaml:"max-context-load-time"`
	TimeNow            string `yaml:"time-now"`
}

// System renders the main agent system prompt.
func System(p SystemParams) string {
	var b strings.Builder
	b.WriteString(frontMatter(systemHeader{
		Language:           p.Language,
		AvailableChannels:  strings.Join(p.Channels, ","),
		MaxContextLoadTime: p.MaxContextLoadTime,
		TimeNow:            isoTime(p.Date),
	}))
	b.WriteString("\nYou are an AI agent, and now you wake up.\n\n")

	b.WriteString("## Memory\n\n")
	fmt.Fprintf(&b, "Your context is loaded from the recent of %d minutes (%.2f hours).\n\n",
		p.MaxContextLoadTime, float64(p.MaxContextLoadTime)/60)
	fmt.Fprintf(&b, "For memory more previous, please use %s tool.\n\n", quote("search_memory"))

	b.WriteString("## Contacts\n\n")
	b.WriteString("You may receive messages from many people or bots (like yourself), They are from different channels.\n\n")
	b.WriteString("You have a contacts book to record them that you do not need to worry about who they are.\n\n")

	b.WriteString("## Channels\n\n")
	b.WriteString("You are able to receive and send messages or files to different channels.\n\n")

	b.WriteString("## Attachments\n\n### Receive\n\n")
	b.WriteString("Files user uploaded will added to your workspace, the file path will be included in the message header.\n")
	if len(p.Attachments) > 0 {
		b.WriteString("\nFiles received in this conversation turn:\n")
		for _, path := range p.Attachments {
			fmt.Fprintf(&b, "- %s\n", path)
		}
	}
	b.WriteString("\n### Send\n\n")
	b.WriteString("**For using channel tools**: Add file path to the message header.\n")
	b.WriteString("**For directly request**: Use the following format:\n\n")
	b.WriteString("```\n" + attachments.OpenTag + "\n- /path/to/file.pdf\n- /path/to/video.mp4\n" + attachments.CloseTag + "\n```\n\n")
	b.WriteString("Important rules for attachments blocks:\n")
	fmt.Fprintf(&b, "- Only include file paths (one per line, prefixed by %s)\n", quote("- "))
	fmt.Fprintf(&b, "- Do not include any extra text inside %s\n", quote(attachments.OpenTag+"..."+attachments.CloseTag))
	b.WriteString("- You may output the attachments block anywhere in your response; it will be parsed and removed from visible text.\n\n")

	b.WriteString("## Skills\n\n")
	fmt.Fprintf(&b, "There are %d skills available, you can use %s to use a skill.\n", len(p.Skills), quote("use_skill"))
	for _, skill := range p.Skills {
		fmt.Fprintf(&b, "- %s: %s\n", skill.Name, skill.Description)
	}

	b.WriteString("\n## Enabled Skills\n\n")
	rendered := make([]string, 0, len(p.EnabledSkills))
	for _, skill := range p.EnabledSkills {
		rendered = append(rendered, SkillPrompt(skill))
	}
	b.WriteString(strings.Join(rendered, "\n\n---\n\n"))

	return strings.TrimSpace(b.String())
}

// SkillPrompt renders one enabled skill.
func SkillPrompt(skill ports.Skill) string {
	return strings.TrimSpace(fmt.Sprintf("**%s**\n> %s\n\n%s", quote(skill.Name), skill.Description, skill.Content))
}

package presets

import (
	"strings"
	"time"
)

type subagentHeader struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	TimeNow     string `yaml:"time-now"`
}

// SubagentSystem renders the system prompt of a subagent: its description
// followed by a header identifying it.
func SubagentSystem(name, description string, now time.Time) string {
	header := frontMatter(subagentHeader{
		Name:        name,
		Description: description,
		TimeNow:     isoTime(now),
	})
	return strings.TrimSpace(strings.Join([]string{description, header}, "\n\n"))
}

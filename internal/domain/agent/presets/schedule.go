package presets

import (
	"strings"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

type scheduleHeader struct {
	Name        string `yaml:"schedule-name"`
	Description string `yaml:"schedule-description"`
	MaxCalls    any    `yaml:"max-calls"`
	Pattern     string `yaml:"cron-pattern"`
	Time        string `yaml:"time"`
}

// Schedule renders the message delivered when a schedule fires.
func Schedule(s ports.Schedule, now time.Time) string {
	var maxCalls any = "Unlimited"
	if s.MaxCalls != nil {
		maxCalls = *s.MaxCalls
	}
	header := frontMatter(scheduleHeader{
		Name:        s.Name,
		Description: s.Description,
		MaxCalls:    maxCalls,
		Pattern:     s.Pattern,
		Time:        isoTime(now),
	})
	return strings.TrimSpace("** This is a scheduled task automatically send to you by the system **\n" +
		header + "\n\n" + s.Command)
}

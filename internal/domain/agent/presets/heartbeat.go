package presets

import (
	"fmt"
	"strings"
	"time"
)

// HeartbeatOK is the reply that means nothing needs attention.
const HeartbeatOK = "HEARTBEAT_OK"

const heartbeatInstructions = "Do not infer or repeat old tasks from prior chats.\n" +
	"If nothing needs attention, reply " + HeartbeatOK + ".\n" +
	"If something needs attention, use the send tool to deliver alerts to the appropriate channel."

// Heartbeat renders a periodic check-in message. checklist is the content of
// the agent's HEARTBEAT.md, empty when there is none.
func Heartbeat(interval time.Duration, now time.Time, checklist string) string {
	sections := []string{
		"** This is a heartbeat check automatically triggered by the system **",
		"---",
		fmt.Sprintf("interval: every %d minutes", int(interval/time.Minute)),
		"time: " + isoTime(now),
		"---",
	}
	if c := strings.TrimSpace(checklist); c != "" {
		sections = append(sections, "\n## HEARTBEAT.md (checklist)\n\n"+c)
	}
	sections = append(sections, "\n"+heartbeatInstructions)
	return strings.TrimSpace(strings.Join(sections, "\n"))
}

// IsHeartbeatOK reports whether a heartbeat reply means nothing to do.
func IsHeartbeatOK(reply string) bool {
	return strings.Contains(strings.TrimSpace(reply), HeartbeatOK)
}

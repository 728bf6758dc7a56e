package presets

import (
	"strings"
	"time"
)

// UserParams describes the sender of a user message.
type UserParams struct {
	ContactID   string
	ContactName string
	Channel     string
	Date        time.Time
	Attachments []string
}

type userHeader struct {
	ContactID   string   `yaml:"contact-id,omitempty"`
	ContactName string   `yaml:"contact-name,omitempty"`
	Channel     string   `yaml:"channel"`
	Time        string   `yaml:"time"`
	Attachments []string `yaml:"attachments,omitempty"`
}

// User renders the text part of a user message: a header naming the sender
// and the files they sent, followed by the query.
func User(query string, p UserParams) string {
	header := frontMatter(userHeader{
		ContactID:   p.ContactID,
		ContactName: p.ContactName,
		Channel:     p.Channel,
		Time:        isoTime(p.Date),
		Attachments: p.Attachments,
	})
	return strings.TrimSpace(header + "\n" + query)
}

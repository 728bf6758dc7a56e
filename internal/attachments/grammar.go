package attachments

import (
	"strings"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

const (
	OpenTag  = "<attachments>"
	CloseTag = "</attachments>"

	pathPrefix = "- "
)

// parseBlock returns one file attachment per "- <path>" line of a block body.
// Any other line is ignored.
func parseBlock(body string) []ports.Attachment {
	var out []ports.Attachment
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, pathPrefix) {
			continue
		}
		path := strings.TrimSpace(line[len(pathPrefix):])
		if path == "" {
			continue
		}
		out = append(out, ports.FileAttachment(path))
	}
	return out
}

// Extract removes every complete block from text and returns the remaining
// text with the file attachments the blocks listed, in order.
//
// An opening tag with no closing tag after it is left in place as ordinary
// text. Text without any complete block is returned unchanged.
func Extract(text string) (string, []ports.Attachment) {
	if !strings.Contains(text, OpenTag) {
		return text, nil
	}

	var (
		out         strings.Builder
		j           joiner
		attachments []ports.Attachment
		found       bool
	)
	rest := text
	for {
		start := strings.Index(rest, OpenTag)
		if start < 0 {
			break
		}
		bodyStart := start + len(OpenTag)
		end := strings.Index(rest[bodyStart:], CloseTag)
		if end < 0 {
			break
		}
		found = true
		j.text(rest[:start], &out)
		attachments = append(attachments, parseBlock(rest[bodyStart:bodyStart+end])...)
		j.block()
		rest = rest[bodyStart+end+len(CloseTag):]
	}
	if !found {
		return text, nil
	}
	j.text(rest, &out)
	j.finish(&out)
	return out.String(), attachments
}

// Contains reports whether text holds at least one complete block.
func Contains(text string) bool {
	start := strings.Index(text, OpenTag)
	if start < 0 {
		return false
	}
	return strings.Contains(text[start+len(OpenTag):], CloseTag)
}

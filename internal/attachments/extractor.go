package attachments

import (
	"strings"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// Extractor is the incremental form of Extract. Feed deltas with Push and call
// FlushRemainder once at the end of the text. Concatenating every returned
// text, and every returned attachment list, gives exactly what Extract returns
// for the whole text.
//
// Outside a block the extractor holds back at most a partial opening tag plus
// a trailing whitespace run. Inside a block it holds everything until the
// closing tag arrives. An Extractor is not safe for concurrent use.
type Extractor struct {
	buf       string
	capturing bool
	// scanFrom is where the next closing-tag search starts within buf, so a
	// long block is not rescanned on every push.
	scanFrom int
	joiner   joiner
}

// NewExtractor returns an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Push appends delta and returns the text and attachments that are now safe
// to emit.
func (e *Extractor) Push(delta string) (string, []ports.Attachment) {
	if delta == "" {
		return "", nil
	}
	e.buf += delta

	var (
		out         strings.Builder
		attachments []ports.Attachment
	)
	for {
		if e.capturing {
			end := strings.Index(e.buf[e.scanFrom:], CloseTag)
			if end < 0 {
				e.scanFrom = max(len(OpenTag), len(e.buf)-len(CloseTag)+1)
				break
			}
			end += e.scanFrom
			attachments = append(attachments, parseBlock(e.buf[len(OpenTag):end])...)
			e.joiner.block()
			e.buf = e.buf[end+len(CloseTag):]
			e.capturing = false
			e.scanFrom = 0
			continue
		}

		start := strings.Index(e.buf, OpenTag)
		if start >= 0 {
			e.joiner.text(e.buf[:start], &out)
			e.buf = e.buf[start:]
			e.capturing = true
			e.scanFrom = len(OpenTag)
			continue
		}

		safe := len(e.buf) - partialTagSuffix(e.buf, OpenTag)
		e.joiner.text(e.buf[:safe], &out)
		e.buf = e.buf[safe:]
		break
	}
	return out.String(), attachments
}

// FlushRemainder resolves whatever is still buffered at the end of the text.
// An unterminated block and a dangling partial tag are emitted as plain text.
// The extractor is reset and can be reused for a new text afterwards.
func (e *Extractor) FlushRemainder() (string, []ports.Attachment) {
	var out strings.Builder
	e.joiner.text(e.buf, &out)
	e.joiner.finish(&out)
	e.buf = ""
	e.capturing = false
	e.scanFrom = 0
	return out.String(), nil
}

// Pending reports whether anything is held back.
func (e *Extractor) Pending() bool {
	return e.buf != "" || e.capturing || e.joiner.pending.Len() > 0 || e.joiner.gap
}

// Capturing reports whether an opening tag was seen without its closing tag.
func (e *Extractor) Capturing() bool {
	return e.capturing
}

// Reset discards all buffered state without emitting it.
func (e *Extractor) Reset() {
	e.buf = ""
	e.capturing = false
	e.scanFrom = 0
	e.joiner.reset()
}

// partialTagSuffix returns the length of the longest proper prefix of tag
// that data ends with.
func partialTagSuffix(data, tag string) int {
	for n := min(len(tag)-1, len(data)); n >= 1; n-- {
		if strings.HasPrefix(tag, data[len(data)-n:]) {
			return n
		}
	}
	return 0
}

package attachments

import "strings"

const maxSeparatorNewlines = 2

// joiner stitches the text around removed blocks back together.
//
// Whitespace touching a removed block is absorbed and replaced by a single
// separator: up to two newlines if any absorbed run held a newline, one space
// if the runs held only spaces, nothing if there was no whitespace at all.
// Blocks separated only by whitespace form one gap. A gap at the very start or
// end of the text leaves no separator. Whitespace not adjacent to a block is
// kept byte for byte, so text without blocks passes through unchanged.
//
// The joiner only ever holds back a trailing whitespace run, which keeps its
// output identical for any split of the same text segments.
type joiner struct {
	started bool // non-whitespace text has been written
	pending strings.Builder

	gap         bool
	gapSpace    bool
	gapNewlines int
}

func (j *joiner) text(s string, out *strings.Builder) {
	for len(s) > 0 {
		first := firstNonSpace(s)
		if first < 0 {
			j.pending.WriteString(s)
			return
		}
		j.pending.WriteString(s[:first])
		j.flushPending(out)

		rest := s[first:]
		last := lastNonSpace(rest)
		out.WriteString(rest[:last+1])
		j.started = true
		s = rest[last+1:]
	}
}

// block records a removed block at the current position.
func (j *joiner) block() {
	ws := j.pending.String()
	j.pending.Reset()
	j.gap = true
	j.absorb(ws)
}

// finish writes whatever whitespace is still held and resets the joiner.
func (j *joiner) finish(out *strings.Builder) {
	if !j.gap {
		out.WriteString(j.pending.String())
	}
	j.reset()
}

func (j *joiner) reset() {
	j.started = false
	j.pending.Reset()
	j.gap = false
	j.gapSpace = false
	j.gapNewlines = 0
}

func (j *joiner) flushPending(out *strings.Builder) {
	ws := j.pending.String()
	j.pending.Reset()
	if !j.gap {
		out.WriteString(ws)
		return
	}
	j.absorb(ws)
	if j.started {
		out.WriteString(j.separator())
	}
	j.gap = false
	j.gapSpace = false
	j.gapNewlines = 0
}

func (j *joiner) absorb(ws string) {
	if ws == "" {
		return
	}
	j.gapSpace = true
	if n := strings.Count(ws, "\n"); n > j.gapNewlines {
		j.gapNewlines = n
	}
}

func (j *joiner) separator() string {
	switch {
	case j.gapNewlines > 0:
		return strings.Repeat("\n", min(j.gapNewlines, maxSeparatorNewlines))
	case j.gapSpace:
		return " "
	default:
		return ""
	}
}

// The scans work on bytes: whitespace is ASCII only, so a delta that ends
// inside a multi-byte rune is handled like any other text.
func firstNonSpace(s string) int {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			return i
		}
	}
	return -1
}

func lastNonSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if !isSpace(s[i]) {
			return i
		}
	}
	return -1
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

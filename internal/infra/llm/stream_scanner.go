package llm

import (
	"bufio"
	"io"
	"strings"
)

const (
	streamScannerInitialBuffer = 64 * 1024
	streamScannerMaxBuffer     = 4 * 1024 * 1024
)

func newStreamScanner(reader io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, streamScannerInitialBuffer), streamScannerMaxBuffer)
	return scanner
}

// sseEvent is one server-sent event. Only the fields providers use are kept.
type sseEvent struct {
	Event string
	Data  string
}

// readSSE calls fn for each event until the body ends, fn returns false, or
// the scanner fails. Multi-line data fields are joined with "\n".
func readSSE(r io.Reader, fn func(sseEvent) bool) error {
	scanner := newStreamScanner(r)
	var (
		event sseEvent
		data  []string
	)
	dispatch := func() bool {
		if len(data) == 0 {
			event = sseEvent{}
			return true
		}
		event.Data = strings.Join(data, "\n")
		ok := fn(event)
		event, data = sseEvent{}, data[:0]
		return ok
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if !dispatch() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.Event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}

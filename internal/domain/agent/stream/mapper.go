package stream

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/chiyuki0325/Memoh/internal/attachments"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("action stream closed")

type mapperState int

const (
	stateIdle mapperState = iota
	stateActive
	stateDone
	stateFailed
	stateClosed
)

// Mapper turns the upstream chunks of one turn into Actions. It is pull
// based: nothing is read from upstream until the consumer asks for the next
// action. A Mapper serves a single consumer and is not safe for concurrent use.
type Mapper struct {
	upstream  ports.ChunkStream
	input     ports.AgentInput
	prompt    *ports.Message
	skills    func() []string
	observe   func(Action)
	logger    logging.Logger
	extractor *attachments.Extractor

	state   mapperState
	pending []Action
	err     error
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithUserPrompt sets the message placed first in agent_end.messages.
func WithUserPrompt(msg ports.Message) MapperOption {
	return func(m *Mapper) {
		m.prompt = &msg
	}
}

// WithSkills reports the skills enabled during the turn in agent_end.
func WithSkills(skills func() []string) MapperOption {
	return func(m *Mapper) {
		m.skills = skills
	}
}

// WithObserver is called with every action right before it is returned.
func WithObserver(observe func(Action)) MapperOption {
	return func(m *Mapper) {
		m.observe = observe
	}
}

// WithLogger sets the mapper logger.
func WithLogger(logger logging.Logger) MapperOption {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// NewMapper maps upstream for the turn started with input.
func NewMapper(upstream ports.ChunkStream, input ports.AgentInput, opts ...MapperOption) *Mapper {
	m := &Mapper{
		upstream:  upstream,
		input:     input,
		extractor: attachments.NewExtractor(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// Next returns the next action, io.EOF after agent_end, or the upstream
// error. An upstream error ends the sequence: no agent_end follows and
// actions already returned stay valid.
func (m *Mapper) Next(ctx context.Context) (Action, error) {
	for {
		if len(m.pending) > 0 {
			action := m.pending[0]
			m.pending[0] = nil
			m.pending = m.pending[1:]
			if m.observe != nil {
				m.observe(action)
			}
			return action, nil
		}

		switch m.state {
		case stateIdle:
			m.state = stateActive
			m.pending = append(m.pending, AgentStart{Input: m.input})
			continue
		case stateDone:
			return nil, io.EOF
		case stateFailed:
			return nil, m.err
		case stateClosed:
			return nil, ErrClosed
		}

		chunk, err := m.upstream.Next(ctx)
		if errors.Is(err, io.EOF) {
			m.complete()
			continue
		}
		if err != nil {
			m.fail(err)
			return nil, err
		}
		m.mapChunk(chunk)
	}
}

// Close releases the upstream call. Safe to call at any point and repeatedly.
func (m *Mapper) Close() error {
	if m.state == stateClosed {
		return nil
	}
	if m.state != stateDone && m.state != stateFailed {
		m.logger.Debug("Action stream closed by consumer before completion")
	}
	m.state = stateClosed
	m.pending = nil
	m.extractor.Reset()
	return m.upstream.Close()
}

// All adapts the mapper to a range-over-func sequence. The error, if any, is
// yielded last. Breaking out of the loop closes the mapper.
func (m *Mapper) All(ctx context.Context) iter.Seq2[Action, error] {
	return func(yield func(Action, error) bool) {
		defer m.Close()
		for {
			action, err := m.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(action, nil) {
				return
			}
		}
	}
}

func (m *Mapper) mapChunk(chunk ports.StreamChunk) {
	switch chunk.Kind {
	case ports.ChunkReasoningStart:
		m.emit(ReasoningStart{Metadata: chunkMetadata(chunk)})
	case ports.ChunkReasoningDelta:
		m.emit(ReasoningDelta{Delta: chunk.Text})
	case ports.ChunkReasoningEnd:
		m.emit(ReasoningEnd{Metadata: chunkMetadata(chunk)})
	case ports.ChunkTextStart:
		m.emit(TextStart{})
	case ports.ChunkTextDelta:
		m.emitExtracted(m.extractor.Push(chunk.Text))
	case ports.ChunkTextEnd:
		m.emitExtracted(m.extractor.FlushRemainder())
		m.emit(TextEnd{Metadata: chunkMetadata(chunk)})
	case ports.ChunkToolCall:
		m.emit(ToolCallStart{
			ToolName:   chunk.ToolName,
			ToolCallID: chunk.ToolCallID,
			Input:      chunk.Input,
			Metadata:   chunkMetadata(chunk),
		})
	case ports.ChunkToolResult:
		m.emit(ToolCallEnd{
			ToolName:   chunk.ToolName,
			ToolCallID: chunk.ToolCallID,
			Input:      chunk.Input,
			Result:     chunk.Output,
			Error:      chunk.Error,
			Metadata:   chunkMetadata(chunk),
		})
	case ports.ChunkFile:
		if chunk.File == nil {
			m.logger.Warn("File chunk without payload ignored")
			return
		}
		m.emit(ImageDelta{
			Image:     chunk.File.Base64,
			MediaType: chunk.File.MediaType,
			Metadata:  chunkMetadata(chunk),
		})
	default:
		m.logger.Debug("Ignoring upstream chunk of kind %q", chunk.Kind)
	}
}

func (m *Mapper) emit(action Action) {
	m.pending = append(m.pending, action)
}

func (m *Mapper) emitExtracted(text string, found []ports.Attachment) {
	if text != "" {
		m.emit(TextDelta{Delta: text})
	}
	if len(found) > 0 {
		m.emit(AttachmentDelta{Attachments: found})
	}
}

func (m *Mapper) complete() {
	// A text part the upstream never ended still owes its held-back text.
	if m.extractor.Pending() {
		m.emitExtracted(m.extractor.FlushRemainder())
	}

	end := AgentEnd{}
	if result := m.upstream.Result(); result != nil {
		stripped, _ := attachments.StripMessages(result.Messages)
		end.Reasoning = result.Reasoning
		end.Usage = result.Usage
		end.Messages = stripped
	}
	if m.prompt != nil {
		end.Messages = append([]ports.Message{*m.prompt}, end.Messages...)
	}
	if m.skills != nil {
		end.Skills = m.skills()
	}
	m.emit(end)
	m.state = stateDone
	if err := m.upstream.Close(); err != nil {
		m.logger.Debug("Closing completed upstream: %v", err)
	}
}

func (m *Mapper) fail(err error) {
	m.extractor.Reset()
	m.state = stateFailed
	m.err = err
	if closeErr := m.upstream.Close(); closeErr != nil {
		m.logger.Debug("Closing failed upstream: %v", closeErr)
	}
	m.logger.Warn("Upstream failed, ending action stream: %v", err)
}

func chunkMetadata(chunk ports.StreamChunk) map[string]any {
	if chunk.ID == "" && len(chunk.Metadata) == 0 {
		return nil
	}
	meta := make(map[string]any, len(chunk.Metadata)+1)
	for k, v := range chunk.Metadata {
		meta[k] = v
	}
	if chunk.ID != "" {
		meta["id"] = chunk.ID
	}
	return meta
}

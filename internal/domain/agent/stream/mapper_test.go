package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

type scriptedUpstream struct {
	chunks []ports.StreamChunk
	err    error
	result *ports.TurnResult
	pulled int
	closed int
}

func (s *scriptedUpstream) Next(ctx context.Context) (ports.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return ports.StreamChunk{}, err
	}
	if s.pulled < len(s.chunks) {
		chunk := s.chunks[s.pulled]
		s.pulled++
		return chunk, nil
	}
	if s.err != nil {
		return ports.StreamChunk{}, s.err
	}
	return ports.StreamChunk{}, io.EOF
}

func (s *scriptedUpstream) Result() *ports.TurnResult { return s.result }

func (s *scriptedUpstream) Close() error {
	s.closed++
	return nil
}

func textChunks(deltas ...string) []ports.StreamChunk {
	chunks := []ports.StreamChunk{{Kind: ports.ChunkTextStart, ID: "t0"}}
	for _, d := range deltas {
		chunks = append(chunks, ports.StreamChunk{Kind: ports.ChunkTextDelta, ID: "t0", Text: d})
	}
	return append(chunks, ports.StreamChunk{Kind: ports.ChunkTextEnd, ID: "t0"})
}

func collect(t *testing.T, m *Mapper) ([]Action, error) {
	t.Helper()
	var out []Action
	for {
		action, err := m.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, action)
	}
}

func TestMapperMapsFullTurn(t *testing.T) {
	input := ports.AgentInput{Query: "report please"}
	up := &scriptedUpstream{
		chunks: append(append([]ports.StreamChunk{
			{Kind: ports.ChunkReasoningStart, ID: "r0"},
			{Kind: ports.ChunkReasoningDelta, ID: "r0", Text: "thinking"},
			{Kind: ports.ChunkReasoningEnd, ID: "r0"},
		}, textChunks("Here <attach", "ments>\n- /a.p", "df\n</attachm", "ents> you go")...),
			ports.StreamChunk{Kind: ports.ChunkToolCall, ToolCallID: "c1", ToolName: "web_search", Input: map[string]any{"query": "go"}},
			ports.StreamChunk{Kind: ports.ChunkToolResult, ToolCallID: "c1", ToolName: "web_search", Input: map[string]any{"query": "go"}, Output: "", Error: "quota exceeded"},
			ports.StreamChunk{Kind: ports.ChunkFile, File: &ports.Attachment{Type: ports.AttachmentImage, Base64: "AAAA", MediaType: "image/png"}},
		),
		result: &ports.TurnResult{Reasoning: []string{"thinking"}, Usage: ports.TokenUsage{TotalTokens: 12}},
	}

	actions, err := collect(t, NewMapper(up, input))
	require.NoError(t, err)

	want := []Action{
		AgentStart{Input: input},
		ReasoningStart{Metadata: map[string]any{"id": "r0"}},
		ReasoningDelta{Delta: "thinking"},
		ReasoningEnd{Metadata: map[string]any{"id": "r0"}},
		TextStart{},
		TextDelta{Delta: "Here"},
		TextDelta{Delta: " you go"},
		AttachmentDelta{Attachments: []ports.Attachment{ports.FileAttachment("/a.pdf")}},
		TextEnd{Metadata: map[string]any{"id": "t0"}},
		ToolCallStart{ToolName: "web_search", ToolCallID: "c1", Input: map[string]any{"query": "go"}},
		ToolCallEnd{ToolName: "web_search", ToolCallID: "c1", Input: map[string]any{"query": "go"}, Result: "", Error: "quota exceeded"},
		ImageDelta{Image: "AAAA", MediaType: "image/png"},
		AgentEnd{Reasoning: []string{"thinking"}, Usage: ports.TokenUsage{TotalTokens: 12}},
	}
	assert.Equal(t, want, actions)
	assert.Equal(t, 1, up.closed)
}

func TestMapperFlushesUnterminatedBlockBeforeTextEnd(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("abc <attachments>\n- /x")}
	actions, err := collect(t, NewMapper(up, ports.AgentInput{}))
	require.NoError(t, err)

	require.Len(t, actions, 6)
	assert.Equal(t, TextDelta{Delta: "abc"}, actions[2])
	assert.Equal(t, TextDelta{Delta: " <attachments>\n- /x"}, actions[3])
	assert.Equal(t, ActionTextEnd, actions[4].ActionType())
	assert.Equal(t, ActionAgentEnd, actions[5].ActionType())
}

func TestMapperBlockClosingInLastDelta(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("see ", "<attachments>\n- /a\n</attachments>\n")}
	actions, err := collect(t, NewMapper(up, ports.AgentInput{}))
	require.NoError(t, err)

	var types []ActionType
	for _, a := range actions {
		types = append(types, a.ActionType())
	}
	assert.Equal(t, []ActionType{
		ActionAgentStart, ActionTextStart, ActionTextDelta, ActionAttachmentDelta, ActionTextEnd, ActionAgentEnd,
	}, types)
	assert.Equal(t, TextDelta{Delta: "see"}, actions[2])
}

func TestMapperFlushesWhenUpstreamEndsWithoutTextEnd(t *testing.T) {
	up := &scriptedUpstream{chunks: []ports.StreamChunk{
		{Kind: ports.ChunkTextStart},
		{Kind: ports.ChunkTextDelta, Text: "tail <attach"},
	}}
	actions, err := collect(t, NewMapper(up, ports.AgentInput{}))
	require.NoError(t, err)
	require.Len(t, actions, 5)
	assert.Equal(t, TextDelta{Delta: "tail"}, actions[2])
	assert.Equal(t, TextDelta{Delta: " <attach"}, actions[3])
}

func TestMapperUpstreamErrorEndsWithoutAgentEnd(t *testing.T) {
	boom := errors.New("provider reset")
	up := &scriptedUpstream{
		chunks: []ports.StreamChunk{
			{Kind: ports.ChunkTextStart},
			{Kind: ports.ChunkTextDelta, Text: "ok <attachments>\n- /never"},
		},
		err: boom,
	}
	m := NewMapper(up, ports.AgentInput{})
	actions, err := collect(t, m)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []Action{AgentStart{}, TextStart{}, TextDelta{Delta: "ok"}}, actions)
	assert.Equal(t, 1, up.closed)
	assert.False(t, m.extractor.Pending())

	_, again := m.Next(context.Background())
	assert.ErrorIs(t, again, boom)
}

func TestMapperAgentEndStripsMessages(t *testing.T) {
	prompt := ports.Message{Role: ports.RoleUser, Content: "send me the file"}
	up := &scriptedUpstream{
		chunks: textChunks("Sent <attachments>\n- /f.txt\n</attachments>"),
		result: &ports.TurnResult{
			Messages: []ports.Message{
				{Role: ports.RoleAssistant, Content: "Sent <attachments>\n- /f.txt\n</attachments>"},
			},
		},
	}
	m := NewMapper(up, ports.AgentInput{Query: "send me the file"},
		WithUserPrompt(prompt),
		WithSkills(func() []string { return []string{"pdf"} }),
	)
	actions, err := collect(t, m)
	require.NoError(t, err)

	end, ok := actions[len(actions)-1].(AgentEnd)
	require.True(t, ok)
	assert.Equal(t, []ports.Message{prompt, {Role: ports.RoleAssistant, Content: "Sent"}}, end.Messages)
	assert.Equal(t, []string{"pdf"}, end.Skills)
	assert.Equal(t, "Sent <attachments>\n- /f.txt\n</attachments>", up.result.Messages[0].Content)
}

func TestMapperIsPullBased(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("a", "b")}
	m := NewMapper(up, ports.AgentInput{})

	action, err := m.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionAgentStart, action.ActionType())
	assert.Equal(t, 0, up.pulled)

	_, err = m.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, up.pulled)
}

func TestMapperCancelledContextReleasesUpstream(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("a")}
	m := NewMapper(up, ports.AgentInput{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.Next(ctx)
	require.NoError(t, err)
	cancel()

	_, err = m.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, up.closed)
}

func TestMapperAllClosesOnBreak(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("a", "b", "c")}
	m := NewMapper(up, ports.AgentInput{})

	seen := 0
	for action, err := range m.All(context.Background()) {
		require.NoError(t, err)
		seen++
		if action.ActionType() == ActionTextStart {
			break
		}
	}
	assert.Equal(t, 2, seen)
	assert.Equal(t, 1, up.closed)

	_, err := m.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Close())
}

func TestMapperAllYieldsErrorLast(t *testing.T) {
	boom := errors.New("boom")
	up := &scriptedUpstream{chunks: textChunks("x")[:1], err: boom}

	var types []ActionType
	var last error
	for action, err := range NewMapper(up, ports.AgentInput{}).All(context.Background()) {
		if err != nil {
			last = err
			continue
		}
		types = append(types, action.ActionType())
	}
	assert.Equal(t, []ActionType{ActionAgentStart, ActionTextStart}, types)
	assert.ErrorIs(t, last, boom)
}

func TestMapperObserverSeesEveryAction(t *testing.T) {
	up := &scriptedUpstream{chunks: textChunks("hi")}
	var observed []ActionType
	m := NewMapper(up, ports.AgentInput{}, WithObserver(func(a Action) {
		observed = append(observed, a.ActionType())
	}))
	actions, err := collect(t, m)
	require.NoError(t, err)
	assert.Len(t, observed, len(actions))
}

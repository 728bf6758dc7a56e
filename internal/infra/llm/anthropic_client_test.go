package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

func anthropicEvents() []string {
	return []string{
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"plan"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hi "}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"there"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"tu_1","name":"echo","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"v\": \"a\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}`,
		`{"type":"message_stop"}`,
	}
}

func TestAnthropicStreamComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range anthropicEvents() {
			var typed struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev), &typed))
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typed.Type, ev)
		}
	}))
	defer srv.Close()

	client := NewAnthropicClient(Config{Model: "claude-test", APIKey: "k", BaseURL: srv.URL})
	var rec recorded
	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{
		System: "sys",
		Messages: []ports.Message{
			{Role: ports.RoleUser, Content: "q"},
			{Role: ports.RoleAssistant, ToolCalls: []ports.ToolCall{{ID: "t0", Name: "echo", Arguments: map[string]any{"v": "z"}}}},
			{Role: ports.RoleTool, ToolCallID: "t0", Content: "z"},
			{Role: ports.RoleUser, Content: "again"},
		},
		Tools: []ports.ToolDefinition{{Name: "echo", Description: "echo"}},
	}, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, []string{"plan"}, rec.reasoning)
	assert.Equal(t, []string{"Hi ", "there"}, rec.contents)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "plan", resp.Reasoning)
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 20, resp.Usage.CompletionTokens)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ports.ToolCall{ID: "tu_1", Name: "echo", Arguments: map[string]any{"v": "a"}}, resp.ToolCalls[0])

	// The tool result and the next user message fold into one user turn.
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
	assert.Len(t, msgs[2].(map[string]any)["content"], 2)
	assert.Len(t, body["tools"], 1)
}

func TestAnthropicErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(Config{Model: "claude-test", APIKey: "k", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{Messages: []ports.Message{{Role: ports.RoleUser, Content: "q"}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}

func TestConvertAnthropicMessagesSkipsSystem(t *testing.T) {
	out := convertAnthropicMessages([]ports.Message{
		{Role: ports.RoleSystem, Content: "ignored"},
		{Role: ports.RoleUser, Content: "a"},
		{Role: ports.RoleUser, Content: "b", Images: []ports.Attachment{ports.ImageAttachment("QUJD", "image/png")}},
	})
	require.Len(t, out, 1)
	assert.Len(t, out[0].Content, 3)
}

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

func TestOllamaStreamComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"model":"llama","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"","thinking":"hmm"},"done":false}`,
			`{"model":"llama","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"llama","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"echo","arguments":{"v":"a"}}}]},"done":false}`,
			`{"model":"llama","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":7}`,
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
		}
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{Model: "llama", BaseURL: srv.URL})
	require.NoError(t, err)

	var rec recorded
	resp, err := client.StreamComplete(context.Background(), ports.CompletionRequest{
		System:      "sys",
		Messages:    []ports.Message{{Role: ports.RoleUser, Content: "q", Images: []ports.Attachment{ports.ImageAttachment("QUJD", "image/png")}}},
		Tools:       []ports.ToolDefinition{{Name: "echo", Description: "echo"}},
		Temperature: 0.5,
	}, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, rec.contents)
	assert.Equal(t, []string{"hmm"}, rec.reasoning)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, ports.TokenUsage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "echo", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"v": "a"}, resp.ToolCalls[0].Arguments)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, []any{"QUJD"}, msgs[1].(map[string]any)["images"])
	assert.Len(t, body["tools"], 1)
	assert.Equal(t, 0.5, body["options"].(map[string]any)["temperature"])
}

func TestOllamaStatusErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{Model: "nope", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}

package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/app/agent"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/react"
	"github.com/chiyuki0325/Memoh/internal/infra/llm"
	"github.com/chiyuki0325/Memoh/internal/infra/observability"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

func newTestServer(t *testing.T, client *llm.MockClient, obs *observability.Observability) (*Server, *session.HistoryStore) {
	t.Helper()
	engine := react.NewEngine(client, react.Config{MaxSteps: 4})
	a := agent.New(engine, agent.Params{}, agent.WithCapabilities(ports.NewCapabilities()), agent.WithObservability(obs))
	history := session.NewHistoryStore(8, 50)
	return NewServer(a, history, obs, Config{Addr: "127.0.0.1:0"}, nil), history
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type sseFrame struct {
	event string
	data  string
}

func readFrames(t *testing.T, resp *http.Response) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.data != "" || cur.event != "" {
				frames = append(frames, cur)
			}
			cur = sseFrame{}
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return frames
}

func frameType(t *testing.T, f sseFrame) string {
	t.Helper()
	var payload struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.data), &payload))
	return payload.Type
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("mock"), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("mock"), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestAskStripsDirectivesAndStoresHistory(t *testing.T) {
	client := llm.NewMockClient("mock", llm.MockStep{
		Chunks: []string{"Done <attachments>\n- /tmp/a.txt\n</attachments>"},
	})
	srv, history := newTestServer(t, client, nil)

	rec := postJSON(t, srv.Handler(), "/agent/ask", map[string]any{
		"query":          "make a file",
		"conversationId": "c1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res agent.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Done", res.Text)
	assert.Equal(t, []ports.Attachment{ports.FileAttachment("/tmp/a.txt")}, res.Attachments)

	stored := history.Get("c1")
	require.Len(t, stored, len(res.Messages))
	assert.Equal(t, ports.RoleUser, stored[0].Role)
	for _, msg := range stored {
		assert.NotContains(t, msg.Content, "<attachments>")
	}
}

func TestAskUsesStoredHistory(t *testing.T) {
	client := llm.NewMockClient("mock")
	srv, history := newTestServer(t, client, nil)
	history.Append("c2", ports.Message{Role: ports.RoleUser, Content: "earlier question"}, ports.Message{Role: ports.RoleAssistant, Content: "earlier answer"})

	rec := postJSON(t, srv.Handler(), "/agent/ask", map[string]any{"query": "again", "conversationId": "c2"})
	require.Equal(t, http.StatusOK, rec.Code)

	reqs := client.Requests()
	require.NotEmpty(t, reqs)
	var contents []string
	for _, m := range reqs[0].Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "earlier answer")
}

func TestAskRejectsEmptyInput(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("mock"), nil)

	rec := postJSON(t, srv.Handler(), "/agent/ask", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	bad := httptest.NewRecorder()
	srv.Handler().ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAskMapsUpstreamErrors(t *testing.T) {
	client := llm.NewMockClient("mock", llm.MockStep{Err: apperrors.NewTransientError(errors.New("rate limited"), "slow down")})
	srv, _ := newTestServer(t, client, nil)

	rec := postJSON(t, srv.Handler(), "/agent/ask", map[string]any{"query": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "transient", body.Kind)
	assert.NotEmpty(t, body.Error)
}

func TestStreamWritesActionFrames(t *testing.T) {
	client := llm.NewMockClient("mock", llm.MockStep{
		Reasoning: "thinking",
		Chunks:    []string{"Here <attach", "ments>\n- /x.png\n</attachments> it is"},
	})
	srv, history := newTestServer(t, client, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/agent/stream", "application/json", strings.NewReader(`{"query":"hi","conversationId":"s1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp)
	require.NotEmpty(t, frames)
	var types []string
	for _, f := range frames {
		assert.Empty(t, f.event)
		types = append(types, frameType(t, f))
	}
	assert.Equal(t, "agent_start", types[0])
	assert.Equal(t, "agent_end", types[len(types)-1])
	assert.Contains(t, types, "reasoning_delta")
	assert.Contains(t, types, "attachment_delta")

	for _, f := range frames {
		if frameType(t, f) == "text_delta" {
			assert.NotContains(t, f.data, "attachments>")
		}
	}
	assert.NotEmpty(t, history.Get("s1"))
}

func TestStreamEndsWithErrorEvent(t *testing.T) {
	client := llm.NewMockClient("mock", llm.MockStep{Err: errors.New("upstream exploded")})
	srv, history := newTestServer(t, client, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/agent/stream", "application/json", strings.NewReader(`{"query":"hi","conversationId":"s2"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, resp)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last.event)
	assert.Contains(t, last.data, "upstream exploded")
	assert.Empty(t, history.Get("s2"))
}

func TestWebSocketStreamsActions(t *testing.T) {
	client := llm.NewMockClient("mock", llm.MockStep{Chunks: []string{"hello ", "there"}})
	srv, _ := newTestServer(t, client, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/agent/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"query": "hi"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var types []string
	var text strings.Builder
	for {
		var msg struct {
			Type  string `json:"type"`
			Delta string `json:"delta"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		types = append(types, msg.Type)
		if msg.Type == "text_delta" {
			text.WriteString(msg.Delta)
		}
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "agent_start", types[0])
	assert.Equal(t, "agent_end", types[len(types)-1])
	assert.Equal(t, "hello there", text.String())
}

func TestResetConversation(t *testing.T) {
	srv, history := newTestServer(t, llm.NewMockClient("mock"), nil)
	history.Append("c3", ports.Message{Role: ports.RoleUser, Content: "hi"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/agent/conversations/c3", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, history.Get("c3"))
}

func TestMetricsEndpoint(t *testing.T) {
	obs := observability.New(observability.Config{Metrics: observability.MetricsConfig{Enabled: true}}, nil)
	defer func() { _ = obs.Shutdown(context.Background()) }()
	srv, _ := newTestServer(t, llm.NewMockClient("mock"), obs)

	rec := postJSON(t, srv.Handler(), "/agent/ask", map[string]any{"query": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	metrics := httptest.NewRecorder()
	srv.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "memoh_turns")
	assert.Contains(t, metrics.Body.String(), `route="/agent/ask"`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("mock"), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})
	req := httptest.NewRequest(http.MethodGet, "/agent/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))
	assert.True(t, originChecker(nil)(req))
}

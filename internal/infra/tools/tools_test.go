package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/infra/memory"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
)

func call(name string, args map[string]any) ports.ToolCall {
	return ports.ToolCall{ID: "c1", Name: name, Arguments: args}
}

func echoTool(name string) Tool {
	return Func{
		Def: ports.ToolDefinition{Name: name},
		Fn: func(_ context.Context, c ports.ToolCall) (*ports.ToolResult, error) {
			return &ports.ToolResult{Content: stringArg(c, "v")}, nil
		},
	}
}

func TestRegistryGatesByCapability(t *testing.T) {
	r := NewRegistry(ports.NewCapabilities(ports.CapabilityWeb), nil)
	assert.True(t, r.Register(ports.CapabilityWeb, echoTool("b"), echoTool("a")))
	assert.False(t, r.Register(ports.CapabilitySchedule, echoTool("schedule")))

	assert.Equal(t, []string{"a", "b"}, r.Names())
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)

	res := r.Execute(context.Background(), call("schedule", nil))
	assert.Equal(t, `tool "schedule" is not available`, res.Error)
	assert.Equal(t, "c1", res.CallID)

	res = r.Execute(context.Background(), call("a", map[string]any{"v": "x"}))
	assert.Equal(t, ports.ToolResult{CallID: "c1", Name: "a", Content: "x"}, res)
}

func TestRegistryTurnsErrorsIntoData(t *testing.T) {
	r := NewRegistry(ports.AllCapabilities(), nil)
	r.Register(ports.CapabilityMessage, Func{
		Def: ports.ToolDefinition{Name: "send"},
		Fn: func(context.Context, ports.ToolCall) (*ports.ToolResult, error) {
			return nil, errors.New("boom")
		},
	})
	res := r.Execute(context.Background(), call("send", nil))
	assert.Equal(t, "Error: boom", res.Error)

	res = r.Execute(context.Background(), ports.ToolCall{Name: "send"})
	assert.Empty(t, res.Content)

	res = NewRegistry(ports.AllCapabilities(), nil).Execute(context.Background(), call("send", nil))
	assert.NotEmpty(t, res.Error)
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/search", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "key", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"The Go language"},
			{"title":"Tour","url":"https://go.dev/tour","description":"A tour"},
			{"title":"Extra","url":"https://x","description":"dropped"}]}}`))
	}))
	defer srv.Close()

	tools := WebTools(BraveConfig{APIKey: "key", BaseURL: srv.URL}, srv.Client())
	require.Len(t, tools, 2)
	res, err := tools[0].Execute(context.Background(), call("web_search", map[string]any{"query": "golang", "count": float64(2)}))
	require.NoError(t, err)

	var payload struct {
		Results []searchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content), &payload))
	require.Len(t, payload.Results, 2)
	assert.Equal(t, "https://go.dev", payload.Results[0].URL)

	_, err = tools[0].Execute(context.Background(), call("web_search", nil))
	require.Error(t, err)
}

func TestWebToolsWithoutBraveKey(t *testing.T) {
	tools := WebTools(BraveConfig{}, nil)
	require.Len(t, tools, 1)
	assert.Equal(t, "web_fetch", tools[0].Definition().Name)
}

func TestWebFetchExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Doc</title><script>var x=1;</script></head>
<body><nav>menu</nav><h2>Intro</h2><p>Hello   <b>world</b>.</p><ul><li>one</li><li>two</li></ul></body></html>`))
	}))
	defer srv.Close()

	fetch := &webFetch{client: srv.Client()}
	res, err := fetch.Execute(context.Background(), call("web_fetch", map[string]any{"url": srv.URL}))
	require.NoError(t, err)
	assert.Equal(t, "# Doc\n\n## Intro\n\nHello world.\n\n- one\n- two", res.Content)

	_, err = fetch.Execute(context.Background(), call("web_fetch", map[string]any{"url": "ftp://x"}))
	require.Error(t, err)
}

type fakeSearcher struct{ hits []memory.Hit }

func (f fakeSearcher) Search(_ context.Context, _ string, limit int) ([]memory.Hit, error) {
	return f.hits[:min(limit, len(f.hits))], nil
}

func TestSearchMemory(t *testing.T) {
	tool := MemoryTools(fakeSearcher{hits: []memory.Hit{{ID: "1", Content: "cat is Miso"}, {ID: "2", Content: "x"}}})[0]
	res, err := tool.Execute(context.Background(), call("search_memory", map[string]any{"query": "cat", "limit": float64(1)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[{"id":"1","content":"cat is Miso","similarity":0,"createdAt":"0001-01-01T00:00:00Z"}]}`, res.Content)

	res, err = MemoryTools(fakeSearcher{})[0].Execute(context.Background(), call("search_memory", map[string]any{"query": "cat"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, res.Content)
}

func TestUseSkill(t *testing.T) {
	var enabled []string
	tool := SkillTools([]ports.Skill{{Name: "writing"}, {Name: "coding"}}, func(n string) { enabled = append(enabled, n) })[0]
	assert.Len(t, tool.Definition().Parameters.Properties["skillName"].Enum, 2)

	_, err := tool.Execute(context.Background(), call("use_skill", map[string]any{"skillName": "coding"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"coding"}, enabled)

	_, err = tool.Execute(context.Background(), call("use_skill", map[string]any{"skillName": "cooking"}))
	require.ErrorContains(t, err, "Unknown skill")
}

func TestSubagentTools(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemorySubagentStore()
	var asked []string
	run := func(_ context.Context, sub ports.Subagent, query string) ([]ports.Message, error) {
		asked = append(asked, sub.Name+":"+query)
		return []ports.Message{
			{Role: ports.RoleUser, Content: query},
			{Role: ports.RoleAssistant, Content: "answer " + query},
		}, nil
	}
	r := NewRegistry(ports.AllCapabilities(), nil)
	r.Register(ports.CapabilitySubagent, SubagentTools(store, run)...)

	res := r.Execute(ctx, call("create_subagent", map[string]any{"name": "scout", "description": "looks around"}))
	require.Empty(t, res.Error)
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Content), &created))

	res = r.Execute(ctx, call("create_subagent", map[string]any{"name": "scout", "description": "again"}))
	assert.Contains(t, res.Error, "already exists")

	res = r.Execute(ctx, call("query_subagent", map[string]any{"name": "scout", "query": "q1"}))
	require.Empty(t, res.Error)
	assert.JSONEq(t, `{"success":true,"result":"answer q1"}`, res.Content)
	r.Execute(ctx, call("query_subagent", map[string]any{"name": "scout", "query": "q2"}))
	assert.Equal(t, []string{"scout:q1", "scout:q2"}, asked)

	sub, err := store.FindByName(ctx, "scout")
	require.NoError(t, err)
	assert.Len(t, sub.Messages, 4)

	res = r.Execute(ctx, call("query_subagent", map[string]any{"name": "ghost", "query": "q"}))
	assert.Equal(t, "No such subagent ghost.", res.Error)

	res = r.Execute(ctx, call("list_subagents", nil))
	assert.Contains(t, res.Content, `"name":"scout"`)

	res = r.Execute(ctx, call("delete_subagent", map[string]any{"id": created["id"]}))
	assert.JSONEq(t, `{"success":true}`, res.Content)
	res = r.Execute(ctx, call("delete_subagent", map[string]any{"id": created["id"]}))
	assert.NotEmpty(t, res.Error)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
	"github.com/chiyuki0325/Memoh/internal/shared/config"
)

const sampleReply = "Here is the chart.\n\n<attachments>\n- /tmp/chart.png\n- /tmp/data.csv\n</attachments>\n\nAnything else?"

func mockConfig() config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	cfg.LLM.Model = "mock"
	cfg.Memory.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"
	return cfg
}

func TestExtractJSONReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runExtract(&out, sampleReply, extractFlags{json: true, chunk: 3}))

	var report extractReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "Here is the chart.\n\nAnything else?", report.Text)
	assert.Equal(t, []ports.Attachment{
		ports.FileAttachment("/tmp/chart.png"),
		ports.FileAttachment("/tmp/data.csv"),
	}, report.Attachments)
	require.NotNil(t, report.Streamed)
	assert.True(t, report.Streamed.Matches)
}

func TestExtractTextOutput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runExtract(&out, "no blocks here", extractFlags{}))
	assert.Equal(t, "no blocks here\n", out.String())
}

func TestStreamExtractMatchesBatchForAllChunkSizes(t *testing.T) {
	input := "a <attachments>\n- /x\n</attachments> b <attachm"
	for size := 1; size <= len(input); size++ {
		text, found := streamExtract(input, size)
		assert.Equal(t, "a b <attachm", text, "chunk size %d", size)
		assert.Equal(t, []ports.Attachment{ports.FileAttachment("/x")}, found, "chunk size %d", size)
	}
}

func TestStreamExtractKeepsRunesWhole(t *testing.T) {
	text, _ := streamExtract("héllo wörld", 1)
	assert.Equal(t, "héllo wörld", text)
}

func TestNewContainerWithMockProvider(t *testing.T) {
	c, err := newContainer(mockConfig(), config.Metadata{Path: "test.yaml", PathSource: "flag"})
	require.NoError(t, err)
	defer func() { _ = c.Cleanup() }()

	res, err := c.Agent.Ask(context.Background(), newInput("ping", nil))
	require.NoError(t, err)
	assert.Contains(t, res.Text, "ping")
	assert.Nil(t, c.Memory)
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	_, err := newContainer(cfg, config.Metadata{Path: "test.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")
}

func TestAgentParamsHeartbeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")
	require.NoError(t, os.WriteFile(path, []byte("- check inbox"), 0o600))

	cfg := mockConfig()
	cfg.Agent.HeartbeatFile = path
	params := agentParams(cfg)
	require.NotNil(t, params.HeartbeatChecklist)
	checklist, err := params.HeartbeatChecklist()
	require.NoError(t, err)
	assert.Equal(t, "- check inbox", checklist)

	cfg.Agent.HeartbeatFile = filepath.Join(dir, "missing.md")
	checklist, err = agentParams(cfg).HeartbeatChecklist()
	require.NoError(t, err)
	assert.Empty(t, checklist)
}

func TestObservabilityConfigKeepsDefaults(t *testing.T) {
	cfg := mockConfig()
	cfg.Tracing.Exporter = ""
	cfg.Tracing.SampleRate = 0
	out := observabilityConfig(cfg)
	assert.Equal(t, "otlp", out.Tracing.Exporter)
	assert.Equal(t, 1.0, out.Tracing.SampleRate)
	assert.False(t, out.Metrics.Enabled)
}

func TestShowConfigRedactsSecrets(t *testing.T) {
	cfg := mockConfig()
	cfg.LLM.APIKey = "sk-abcdefghijklmnop"
	cfg.Tools.Brave.APIKey = "short"
	var out bytes.Buffer
	require.NoError(t, showConfig(&out, cfg, config.Metadata{Path: "x.yaml", PathSource: "flag"}))
	assert.NotContains(t, out.String(), "sk-abcdefghijklmnop")
	assert.Contains(t, out.String(), "sk-a…op")
	assert.NotContains(t, out.String(), "short")
}

func TestValidateConfig(t *testing.T) {
	var out bytes.Buffer
	cfg := mockConfig()
	cfg.LLM.Model = ""
	err := validateConfig(&out, cfg)
	require.Error(t, err)
	assert.Contains(t, out.String(), "llm.model")
}

func TestActionPrinterTranscript(t *testing.T) {
	var out bytes.Buffer
	p := newActionPrinter(&out)
	for _, a := range []stream.Action{
		stream.AgentStart{},
		stream.TextStart{},
		stream.TextDelta{Delta: "Hello"},
		stream.TextEnd{},
		stream.AttachmentDelta{Attachments: []ports.Attachment{ports.FileAttachment("/tmp/a.txt")}},
		stream.ToolCallStart{ToolName: "web_fetch", Input: map[string]any{"url": "https://example.com"}},
		stream.ToolCallEnd{ToolName: "web_fetch"},
	} {
		p.print(a)
	}
	p.finish()

	got := out.String()
	assert.Contains(t, got, "Hello\n")
	assert.Contains(t, got, "web_fetch")
	assert.Contains(t, got, "/tmp/a.txt")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "****", redact("abc"))
	assert.Equal(t, "abcd…yz", redact("abcdefghijxyz"))
}

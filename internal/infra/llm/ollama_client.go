package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

// ollamaClient talks to a local Ollama daemon through its Go API package.
type ollamaClient struct {
	baseClient
	client *api.Client
}

var _ ports.StreamingLLMClient = (*ollamaClient)(nil)

// NewOllamaClient constructs a client for an Ollama host.
func NewOllamaClient(cfg Config) (ports.StreamingLLMClient, error) {
	base := newBaseClient(ProviderOllama, "http://localhost:11434", cfg)
	u, err := url.Parse(base.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", base.baseURL, err)
	}
	return &ollamaClient{baseClient: base, client: api.NewClient(u, base.httpClient)}, nil
}

func (c *ollamaClient) chatRequest(req ports.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	messages, err := convertOllamaMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if req.Temperature > 0 {
		chat.Options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		chat.Options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		chat.Options["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		chat.Options["stop"] = req.StopSequences
	}
	if len(req.Tools) > 0 {
		if err := jsonRoundTrip(convertOpenAITools(req.Tools), &chat.Tools); err != nil {
			return nil, fmt.Errorf("convert tools: %w", err)
		}
	}
	return chat, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	return c.run(ctx, req, false, ports.CompletionStreamCallbacks{})
}

func (c *ollamaClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	return c.run(ctx, req, true, callbacks)
}

func (c *ollamaClient) run(ctx context.Context, req ports.CompletionRequest, stream bool, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	chat, err := c.chatRequest(req, stream)
	if err != nil {
		return nil, err
	}

	var (
		content   strings.Builder
		reasoning strings.Builder
		calls     []ports.ToolCall
		last      api.ChatResponse
	)
	err = c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		if resp.Message.Thinking != "" {
			reasoning.WriteString(resp.Message.Thinking)
			if callbacks.OnReasoningDelta != nil {
				callbacks.OnReasoningDelta(ports.ContentDelta{Delta: resp.Message.Thinking})
			}
		}
		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			if callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(ports.ContentDelta{Delta: resp.Message.Content})
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			var args map[string]any
			if err := jsonRoundTrip(tc.Function.Arguments, &args); err != nil {
				c.logger.Warn("Dropping tool call %s with unreadable arguments: %v", tc.Function.Name, err)
				continue
			}
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, ports.ToolCall{Name: tc.Function.Name, Arguments: args})
		}
		last = resp
		return nil
	})
	if err != nil {
		return nil, c.mapError(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reasoning.Len() > 0 && callbacks.OnReasoningDelta != nil {
		callbacks.OnReasoningDelta(ports.ContentDelta{Final: true})
	}
	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta(ports.ContentDelta{Final: true})
	}

	result := &ports.CompletionResponse{
		Content:    content.String(),
		Reasoning:  reasoning.String(),
		ToolCalls:  calls,
		StopReason: last.DoneReason,
		Usage: ports.TokenUsage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}
	c.fireUsageCallback(result.Usage)
	return result, nil
}

func (c *ollamaClient) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return apperrors.MapHTTPError(statusErr.StatusCode, []byte(statusErr.ErrorMessage), nil)
	}
	return apperrors.WrapRequestError(err)
}

func convertOllamaMessages(system string, msgs []ports.Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, api.Message{Role: ports.RoleSystem, Content: system})
	}
	for _, msg := range msgs {
		m := api.Message{Role: msg.Role, Content: msg.Content}
		if msg.Role == ports.RoleTool {
			m.ToolName = msg.ToolName
		}
		for _, img := range ports.Images(msg.Images) {
			_, data := rawImage(img)
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return nil, fmt.Errorf("decode image: %w", err)
			}
			m.Images = append(m.Images, api.ImageData(decoded))
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				calls = append(calls, map[string]any{
					"function": map[string]any{"name": call.Name, "arguments": call.Arguments},
				})
			}
			if err := jsonRoundTrip(calls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("convert tool calls: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// jsonRoundTrip copies between wire-compatible shapes without depending on
// the exact Go types on either side.
func jsonRoundTrip(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

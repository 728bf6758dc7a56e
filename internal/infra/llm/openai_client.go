package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

// openaiClient speaks the OpenAI-compatible chat completions API. OpenRouter
// and most self-hosted gateways use the same wire format.
type openaiClient struct {
	baseClient
}

var _ ports.StreamingLLMClient = (*openaiClient)(nil)

// NewOpenAIClient constructs a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg Config) ports.StreamingLLMClient {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	defaultBaseURL := "https://api.openai.com/v1"
	if provider == ProviderOpenRouter {
		defaultBaseURL = "https://openrouter.ai/api/v1"
	}
	return &openaiClient{baseClient: newBaseClient(provider, defaultBaseURL, cfg)}
}

type oaiToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaiImage struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *oaiUsage) tokens() ports.TokenUsage {
	if u == nil {
		return ports.TokenUsage{}
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return ports.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: total}
}

type oaiError struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

func (c *openaiClient) buildRequest(req ports.CompletionRequest, stream bool) map[string]any {
	body := map[string]any{
		"model":    c.model,
		"messages": convertOpenAIMessages(req.System, req.Messages),
		"stream":   stream,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = append([]string(nil), req.StopSequences...)
	}
	if stream {
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	if req.Thinking.Enabled {
		effort := strings.TrimSpace(req.Thinking.Effort)
		if effort == "" {
			effort = "medium"
		}
		if c.provider == ProviderOpenRouter {
			body["reasoning"] = map[string]any{"effort": effort}
		} else {
			body["reasoning_effort"] = effort
		}
	}
	if len(req.Tools) > 0 {
		body["tools"] = convertOpenAITools(req.Tools)
		body["tool_choice"] = "auto"
	}
	return body
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	prefix := c.logPrefix(req.Metadata)
	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	c.logger.Debug("%sPOST %s", prefix, endpoint)

	resp, err := c.doPost(ctx, endpoint, body)
	if err != nil {
		return nil, apperrors.WrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readResponseBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError response %d: %s", prefix, resp.StatusCode, string(respBody))
		return nil, apperrors.MapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content          string        `json:"content"`
				Reasoning        string        `json:"reasoning"`
				ReasoningContent string        `json:"reasoning_content"`
				ToolCalls        []oaiToolCall `json:"tool_calls"`
				Images           []oaiImage    `json:"images"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *oaiUsage `json:"usage"`
		Error *oaiError `json:"error"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		return nil, apperrors.MapHTTPError(resp.StatusCode, []byte(formatOAIError(oaiResp.Error)), resp.Header)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, apperrors.NewTransientError(errors.New("no choices in response"), "LLM returned an empty response. Please retry.")
	}

	choice := oaiResp.Choices[0]
	result := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		Reasoning:  choice.Message.Reasoning + choice.Message.ReasoningContent,
		StopReason: choice.FinishReason,
		Usage:      oaiResp.Usage.tokens(),
	}
	for _, img := range choice.Message.Images {
		if img.ImageURL.URL != "" {
			result.Files = append(result.Files, imageFromURL(img.ImageURL.URL))
		}
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := parseToolArguments(tc.Function.Arguments)
		if err != nil {
			c.logger.Warn("%sDropping tool call %s with unparseable arguments: %v", prefix, tc.Function.Name, err)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	c.fireUsageCallback(result.Usage)
	return result, nil
}

// StreamComplete streams deltas through callbacks while building the final
// aggregated response.
func (c *openaiClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	prefix := c.logPrefix(req.Metadata)
	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	c.logger.Debug("%sPOST %s (stream)", prefix, endpoint)

	started := time.Now()
	resp, err := c.doPost(ctx, endpoint, body)
	if err != nil {
		return nil, apperrors.WrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := readResponseBody(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		c.logger.Debug("%sError response %d: %s", prefix, resp.StatusCode, string(respBody))
		return nil, apperrors.MapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	type streamChunk struct {
		Choices []struct {
			Delta struct {
				Content          string        `json:"content"`
				Reasoning        string        `json:"reasoning"`
				ReasoningContent string        `json:"reasoning_content"`
				ToolCalls        []oaiToolCall `json:"tool_calls"`
				Images           []oaiImage    `json:"images"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *oaiUsage `json:"usage"`
		Error *oaiError `json:"error"`
	}

	type toolAccumulator struct {
		id        string
		name      string
		arguments strings.Builder
	}

	var (
		content      strings.Builder
		reasoning    strings.Builder
		files        []ports.Attachment
		usage        ports.TokenUsage
		finishReason string
		streamErr    error
		firstByte    bool
		toolOrder    []int
		tools        = map[int]*toolAccumulator{}
	)

	readErr := readSSE(resp.Body, func(ev sseEvent) bool {
		payload := strings.TrimSpace(ev.Data)
		if payload == "" {
			return true
		}
		if payload == "[DONE]" {
			return false
		}
		if !firstByte {
			firstByte = true
			c.logger.Debug("%sFirst stream event after %v", prefix, time.Since(started))
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("%sSkipping undecodable stream chunk: %v", prefix, err)
			return true
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			streamErr = apperrors.NewTransientError(errors.New(formatOAIError(chunk.Error)), "The model provider aborted the stream.")
			return false
		}
		if chunk.Usage != nil {
			usage = chunk.Usage.tokens()
		}
		if len(chunk.Choices) == 0 {
			return true
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		for _, r := range []string{choice.Delta.Reasoning, choice.Delta.ReasoningContent} {
			if r == "" {
				continue
			}
			reasoning.WriteString(r)
			if callbacks.OnReasoningDelta != nil {
				callbacks.OnReasoningDelta(ports.ContentDelta{Delta: r})
			}
		}
		if text := choice.Delta.Content; text != "" {
			content.WriteString(text)
			if callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(ports.ContentDelta{Delta: text})
			}
		}
		for _, img := range choice.Delta.Images {
			if img.ImageURL.URL == "" {
				continue
			}
			att := imageFromURL(img.ImageURL.URL)
			files = append(files, att)
			if callbacks.OnFile != nil {
				callbacks.OnFile(att)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := tools[tc.Index]
			if !ok {
				acc = &toolAccumulator{}
				tools[tc.Index] = acc
				toolOrder = append(toolOrder, tc.Index)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.arguments.WriteString(tc.Function.Arguments)
		}
		return true
	})
	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.WrapRequestError(fmt.Errorf("read response stream: %w", readErr))
	}
	if streamErr != nil {
		return nil, streamErr
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
		Files:      files,
		StopReason: finishReason,
		Usage:      usage,
	}
	for _, idx := range toolOrder {
		acc := tools[idx]
		args, err := parseToolArguments(acc.arguments.String())
		if err != nil {
			c.logger.Warn("%sDropping tool call %s with unparseable arguments: %v", prefix, acc.name, err)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{ID: acc.id, Name: acc.name, Arguments: args})
	}
	c.fireUsageCallback(result.Usage)
	return result, nil
}

func formatOAIError(e *oaiError) string {
	if e.Type != "" {
		return e.Type + ": " + e.Message
	}
	return e.Message
}

func convertOpenAIMessages(system string, msgs []ports.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, map[string]any{"role": ports.RoleSystem, "content": system})
	}
	for _, msg := range msgs {
		entry := map[string]any{"role": msg.Role}
		switch msg.Role {
		case ports.RoleTool:
			entry["tool_call_id"] = msg.ToolCallID
			entry["content"] = msg.Content
		case ports.RoleAssistant:
			entry["content"] = msg.Content
			if calls := convertOpenAIToolCalls(msg.ToolCalls); len(calls) > 0 {
				entry["tool_calls"] = calls
			}
		default:
			images := ports.Images(msg.Images)
			if len(images) == 0 {
				entry["content"] = msg.Content
				break
			}
			parts := make([]map[string]any, 0, len(images)+1)
			if msg.Content != "" {
				parts = append(parts, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, img := range images {
				parts = append(parts, map[string]any{
					"type":      "image_url",
					"image_url": map[string]any{"url": imageURL(img)},
				})
			}
			entry["content"] = parts
		}
		out = append(out, entry)
	}
	return out
}

func convertOpenAIToolCalls(calls []ports.ToolCall) []map[string]any {
	result := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		if !isValidToolName(call.Name) {
			continue
		}
		result = append(result, map[string]any{
			"id":   call.ID,
			"type": "function",
			"function": map[string]any{
				"name":      call.Name,
				"arguments": marshalArguments(call.Arguments),
			},
		})
	}
	return result
}

func convertOpenAITools(tools []ports.ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		if !isValidToolName(tool.Name) {
			continue
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  normalizeToolSchema(tool.Parameters),
			},
		})
	}
	return result
}

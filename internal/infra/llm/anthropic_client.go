package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

const anthropicDefaultMaxTokens = 8192

// anthropicClient talks to the Messages API through the official SDK.
type anthropicClient struct {
	baseClient
	client anthropic.Client
}

var _ ports.StreamingLLMClient = (*anthropicClient)(nil)

// NewAnthropicClient constructs a Messages API client.
func NewAnthropicClient(cfg Config) ports.StreamingLLMClient {
	base := newBaseClient(ProviderAnthropic, "", cfg)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(base.httpClient),
		// Retries are owned by retryClient.
		option.WithMaxRetries(0),
	}
	if base.baseURL != "" {
		opts = append(opts, option.WithBaseURL(base.baseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &anthropicClient{baseClient: base, client: anthropic.NewClient(opts...)}
}

func (c *anthropicClient) params(req ports.CompletionRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  convertAnthropicMessages(req.Messages),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 && !req.Thinking.Enabled {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 && !req.Thinking.Enabled {
		params.TopP = anthropic.Float(req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = append([]string(nil), req.StopSequences...)
	}
	if req.Thinking.Enabled {
		budget := int64(req.Thinking.BudgetTokens)
		if budget < 1024 {
			budget = 1024
		}
		if budget >= maxTokens {
			params.MaxTokens = budget + anthropicDefaultMaxTokens
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	for _, tool := range req.Tools {
		if !isValidToolName(tool.Name) {
			continue
		}
		schema := normalizeToolSchema(tool.Parameters)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}})
	}
	return params
}

func (c *anthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, c.mapError(ctx, err)
	}
	result := anthropicResponse(msg)
	c.fireUsageCallback(result.Usage)
	return result, nil
}

func (c *anthropicClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	prefix := c.logPrefix(req.Metadata)
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	defer func() { _ = stream.Close() }()

	message := anthropic.Message{}
	reasoning := false
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			c.logger.Debug("%sFailed to accumulate stream event: %v", prefix, err)
			return nil, fmt.Errorf("accumulate stream: %w", err)
		}
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		switch d := delta.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if reasoning {
				reasoning = false
				if callbacks.OnReasoningDelta != nil {
					callbacks.OnReasoningDelta(ports.ContentDelta{Final: true})
				}
			}
			if d.Text != "" && callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(ports.ContentDelta{Delta: d.Text})
			}
		case anthropic.ThinkingDelta:
			reasoning = true
			if d.Thinking != "" && callbacks.OnReasoningDelta != nil {
				callbacks.OnReasoningDelta(ports.ContentDelta{Delta: d.Thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, c.mapError(ctx, err)
	}
	if reasoning && callbacks.OnReasoningDelta != nil {
		callbacks.OnReasoningDelta(ports.ContentDelta{Final: true})
	}
	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta(ports.ContentDelta{Final: true})
	}

	result := anthropicResponse(&message)
	c.fireUsageCallback(result.Usage)
	return result, nil
}

func (c *anthropicClient) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		body := []byte(apiErr.RawJSON())
		if len(body) == 0 {
			body = []byte(apiErr.Error())
		}
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return apperrors.MapHTTPError(apiErr.StatusCode, body, header)
	}
	return apperrors.WrapRequestError(err)
}

func anthropicResponse(msg *anthropic.Message) *ports.CompletionResponse {
	result := &ports.CompletionResponse{
		StopReason: string(msg.StopReason),
		Usage: ports.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text, thinking strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			thinking.WriteString(b.Thinking)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if parsed, err := parseToolArguments(string(b.Input)); err == nil {
					args = parsed
				}
			}
			result.ToolCalls = append(result.ToolCalls, ports.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	result.Content = text.String()
	result.Reasoning = thinking.String()
	return result
}

// convertAnthropicMessages folds history into alternating user/assistant
// turns. Tool results travel as user content blocks.
func convertAnthropicMessages(msgs []ports.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case ports.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)
		case ports.RoleTool:
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		case ports.RoleSystem:
			// The system prompt travels in params.System.
		default:
			var blocks []anthropic.ContentBlockParamUnion
			for _, img := range ports.Images(msg.Images) {
				mediaType, data := rawImage(img)
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			appendBlocks(anthropic.MessageParamRoleUser, blocks...)
		}
	}
	return out
}

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentworld/nexusworld/internal/retry"
	"github.com/agentworld/nexusworld/pkg/models"
)

// AnthropicProvider adapts github.com/anthropics/anthropic-sdk-go to the
// shared Provider contract. Grounded on internal/agent/providers/anthropic.go's
// streaming/tool-call-accumulation structure, narrowed to the pure
// streamResponse shape of spec §4.3.2/§4.9: no retries beyond the network
// layer, no computer-use/vision/thinking extensions, no storage access.
type AnthropicProvider struct {
	client anthropic.Client
	retry  retry.Config
}

// NewAnthropicProvider constructs an adapter using apiKey for authentication.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		retry:  retry.Exponential(3, time.Second, 30*time.Second),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) StreamResponse(ctx context.Context, cfg Config, messages []models.AgentMessage, tools []Tool, onChunk OnChunk) (*LLMResponse, error) {
	system, converted, err := convertAnthropicMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		Messages:  converted,
		MaxTokens: int64(maxTokensOrDefault(cfg.MaxTokens)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if filtered := FilterClientTools(tools); len(filtered) > 0 {
		toolParams, err := convertAnthropicTools(filtered)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		params.Tools = toolParams
	}

	result, outcome := retry.DoWithValue(ctx, p.retry, func() (*LLMResponse, error) {
		stream := p.client.Messages.NewStreaming(ctx, params)
		resp, err := processAnthropicStream(stream, onChunk)
		if err != nil {
			if !isAnthropicRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	})
	if outcome.Err != nil {
		return nil, fmt.Errorf("anthropic: %w", outcome.Err)
	}
	return result, nil
}

func maxTokensOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return 4096
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], onChunk OnChunk) (*LLMResponse, error) {
	var text strings.Builder
	var toolCalls []models.ToolCall
	var currentTool *models.ToolCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentTool = &models.ToolCall{ID: tu.ID, Name: tu.Name}
				currentInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(Chunk{Kind: ChunkText, Text: delta.Text})
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if currentTool != nil {
				currentTool.Input = json.RawMessage(currentInput.String())
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			return finishAnthropicResponse(text.String(), toolCalls, inputTokens, outputTokens), nil
		case "error":
			return nil, errors.New("anthropic: stream error")
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return finishAnthropicResponse(text.String(), toolCalls, inputTokens, outputTokens), nil
}

func finishAnthropicResponse(text string, toolCalls []models.ToolCall, inputTokens, outputTokens int) *LLMResponse {
	if len(toolCalls) > 0 {
		return &LLMResponse{Type: ResponseToolCalls, ToolCalls: toolCalls, InputTokens: inputTokens, OutputTokens: outputTokens}
	}
	return &LLMResponse{Type: ResponseText, Text: text, InputTokens: inputTokens, OutputTokens: outputTokens}
}

func convertAnthropicMessages(messages []models.AgentMessage) (system string, out []anthropic.MessageParam, err error) {
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if m.Role == models.RoleTool {
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if jsonErr := json.Unmarshal(tc.Input, &input); jsonErr != nil {
					return "", nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, jsonErr)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return system, out, nil
}

func convertAnthropicTools(tools []Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func isAnthropicRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

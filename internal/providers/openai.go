package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentworld/nexusworld/internal/retry"
	"github.com/agentworld/nexusworld/pkg/models"
)

// OpenAIProvider adapts github.com/sashabaranov/go-openai to the shared
// Provider contract. Grounded on internal/agent/providers/openai.go's
// streaming/tool-call-accumulation structure, narrowed to the pure
// streamResponse shape (no tool execution, no storage).
type OpenAIProvider struct {
	client *openai.Client
	retry  retry.Config
}

// NewOpenAIProvider constructs an adapter using apiKey for authentication.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		retry:  retry.Exponential(3, time.Second, 30*time.Second),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) StreamResponse(ctx context.Context, cfg Config, messages []models.AgentMessage, tools []Tool, onChunk OnChunk) (*LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    convertMessages(messages),
		Temperature: float32(cfg.Temperature),
		Stream:      true,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if filtered := FilterClientTools(tools); len(filtered) > 0 {
		req.Tools = convertTools(filtered)
	}

	result, outcome := retry.DoWithValue(ctx, p.retry, func() (*LLMResponse, error) {
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if !isRetryableError(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		defer stream.Close()
		resp, err := processStream(stream, onChunk)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return resp, nil
	})
	if outcome.Err != nil {
		return nil, fmt.Errorf("openai: %w", outcome.Err)
	}
	return result, nil
}

func processStream(stream *openai.ChatCompletionStream, onChunk OnChunk) (*LLMResponse, error) {
	var text strings.Builder
	toolCalls := make(map[int]*models.ToolCall)
	var order []int
	var inputTokens, outputTokens int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onChunk != nil {
				onChunk(Chunk{Kind: ChunkText, Text: delta.Content})
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := toolCalls[idx]
			if !ok {
				existing = &models.ToolCall{ID: tc.ID, Name: tc.Function.Name}
				toolCalls[idx] = existing
				order = append(order, idx)
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				existing.Input = json.RawMessage(string(existing.Input) + tc.Function.Arguments)
			}
		}
	}

	if len(toolCalls) > 0 {
		calls := make([]models.ToolCall, 0, len(order))
		for _, idx := range order {
			calls = append(calls, *toolCalls[idx])
		}
		return &LLMResponse{Type: ResponseToolCalls, ToolCalls: calls, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
	}
	return &LLMResponse{Type: ResponseText, Text: text.String(), InputTokens: inputTokens, OutputTokens: outputTokens}, nil
}

func convertMessages(messages []models.AgentMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Input),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &params); err != nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func isRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

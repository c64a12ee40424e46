package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/agentworld/nexusworld/internal/retry"
	"github.com/agentworld/nexusworld/pkg/models"
)

// GoogleProvider adapts google.golang.org/genai to the shared Provider
// contract. Grounded on internal/agent/providers/google.go's
// convertMessages/buildConfig/processStreamResponse structure, narrowed to
// the pure streamResponse shape of spec §4.3.2/§4.9 (no attachment support,
// since AgentMessage carries no attachment field in this spec's data model).
type GoogleProvider struct {
	client *genai.Client
	retry  retry.Config
}

// NewGoogleProvider constructs an adapter using apiKey for authentication.
// Client creation can fail (it validates credentials eagerly), so callers
// must check err.
func NewGoogleProvider(ctx context.Context, apiKey string) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &GoogleProvider{client: client, retry: retry.Exponential(3, time.Second, 30*time.Second)}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) StreamResponse(ctx context.Context, cfg Config, messages []models.AgentMessage, tools []Tool, onChunk OnChunk) (*LLMResponse, error) {
	contents, system := convertGoogleMessages(messages)

	genConfig := &genai.GenerateContentConfig{}
	if system != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if cfg.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if filtered := FilterClientTools(tools); len(filtered) > 0 {
		genConfig.Tools = convertGoogleTools(filtered)
	}

	result, outcome := retry.DoWithValue(ctx, p.retry, func() (*LLMResponse, error) {
		iter := p.client.Models.GenerateContentStream(ctx, cfg.Model, contents, genConfig)
		resp, err := processGoogleStream(ctx, iter, onChunk)
		if err != nil {
			if !isGoogleRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	})
	if outcome.Err != nil {
		return nil, fmt.Errorf("google: %w", outcome.Err)
	}
	return result, nil
}

func processGoogleStream(ctx context.Context, iter func(func(*genai.GenerateContentResponse, error) bool), onChunk OnChunk) (*LLMResponse, error) {
	var text strings.Builder
	var toolCalls []models.ToolCall
	var streamErr error

	iter(func(resp *genai.GenerateContentResponse, err error) bool {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}
		if err != nil {
			streamErr = err
			return false
		}
		if resp == nil {
			return true
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					text.WriteString(part.Text)
					if onChunk != nil {
						onChunk(Chunk{Kind: ChunkText, Text: part.Text})
					}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					toolCalls = append(toolCalls, models.ToolCall{
						ID:    "gemini-" + part.FunctionCall.Name,
						Name:  part.FunctionCall.Name,
						Input: argsJSON,
					})
				}
			}
		}
		return true
	})
	if streamErr != nil {
		return nil, streamErr
	}
	if len(toolCalls) > 0 {
		return &LLMResponse{Type: ResponseToolCalls, ToolCalls: toolCalls}, nil
	}
	return &LLMResponse{Type: ResponseText, Text: text.String()}, nil
}

func convertGoogleMessages(messages []models.AgentMessage) (contents []*genai.Content, system string) {
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}

		content := &genai.Content{}
		switch m.Role {
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}
		if m.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if len(tc.Input) > 0 {
				_ = json.Unmarshal(tc.Input, &args)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		if m.Role == models.RoleTool {
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: m.ToolCallID, Response: response},
			})
		}
		contents = append(contents, content)
	}
	return contents, system
}

func convertGoogleTools(tools []Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func isGoogleRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset")
}

// Package providers implements the pure LLM provider adapter contract of
// SPEC_FULL.md §4.9: streamResponse(config, messages, tools, onChunk) →
// LLMResponse. Adapters never execute tools, consult approvals, or touch
// storage — that is the orchestrator's job (internal/world).
package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentworld/nexusworld/pkg/models"
)

// ClientToolPrefix marks pseudo-tools handled entirely by the UI client
// (e.g. client.requestApproval). Adapters must never advertise these to the
// LLM.
const ClientToolPrefix = "client."

// Config carries the per-call model parameters. Model/Temperature come from
// the agent record (pkg/models.Agent); APIKey is resolved by internal/config
// from the environment.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
}

// Tool is a schema advertised to the LLM so it can decide to call it.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// FilterClientTools drops every tool whose name carries ClientToolPrefix, so
// no client.* pseudo-tool is ever advertised to an LLM (spec §4.9).
func FilterClientTools(tools []Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if strings.HasPrefix(t.Name, ClientToolPrefix) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ResponseType discriminates an LLMResponse.
type ResponseType string

const (
	ResponseText      ResponseType = "text"
	ResponseToolCalls ResponseType = "tool_calls"
)

// LLMResponse is the single normalised shape every adapter returns,
// regardless of backend wire format.
type LLMResponse struct {
	Type      ResponseType
	Text      string
	ToolCalls []models.ToolCall
	// InputTokens/OutputTokens are best-effort usage counts for metrics;
	// zero when the backend does not report them mid-stream.
	InputTokens  int
	OutputTokens int
}

// ChunkKind discriminates a single streamed delta passed to onChunk.
type ChunkKind string

const (
	ChunkText ChunkKind = "text"
)

// Chunk is one incremental delta of a streaming response. Only text deltas
// are surfaced mid-stream; tool_calls accumulate silently and are reported
// once, complete, in the final LLMResponse.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// OnChunk is invoked for every streamed delta, in order, before
// StreamResponse returns its final LLMResponse.
type OnChunk func(Chunk)

// Provider adapts one LLM backend to the shared contract. Implementations
// must not execute tools, check approvals, or read/write storage.
type Provider interface {
	Name() string
	StreamResponse(ctx context.Context, cfg Config, messages []models.AgentMessage, tools []Tool, onChunk OnChunk) (*LLMResponse, error)
}

package world

import (
	"context"
	"sync"

	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/pkg/models"
)

// scriptedProvider is a fake providers.Provider that replays a
// pre-programmed queue of responses per model, keyed by cfg.Model so a
// single instance can script several agents independently by giving each a
// distinct Model value. Once a model's queue is exhausted it keeps
// returning a harmless text reply rather than erroring, so a test that
// triggers one extra orchestration iteration than expected fails on an
// assertion instead of a nil-pointer panic.
type scriptedProvider struct {
	mu    sync.Mutex
	queue map[string][]providers.LLMResponse
	calls map[string]int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		queue: make(map[string][]providers.LLMResponse),
		calls: make(map[string]int),
	}
}

// script appends responses to model's queue, returned in order on
// successive StreamResponse calls carrying that model.
func (p *scriptedProvider) script(model string, responses ...providers.LLMResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue[model] = append(p.queue[model], responses...)
}

func (p *scriptedProvider) callCount(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[model]
}

func (p *scriptedProvider) Name() string { return "fake" }

func (p *scriptedProvider) StreamResponse(ctx context.Context, cfg providers.Config, messages []models.AgentMessage, tools []providers.Tool, onChunk providers.OnChunk) (*providers.LLMResponse, error) {
	p.mu.Lock()
	idx := p.calls[cfg.Model]
	p.calls[cfg.Model] = idx + 1
	queue := p.queue[cfg.Model]
	p.mu.Unlock()

	resp := providers.LLMResponse{Type: providers.ResponseText, Text: "(scriptedProvider: no more scripted responses for " + cfg.Model + ")"}
	if idx < len(queue) {
		resp = queue[idx]
	}
	if resp.Type == providers.ResponseText && resp.Text != "" && onChunk != nil {
		onChunk(providers.Chunk{Kind: providers.ChunkText, Text: resp.Text})
	}
	out := resp
	return &out, nil
}

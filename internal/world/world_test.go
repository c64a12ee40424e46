package world

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentworld/nexusworld/internal/observability"
	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/internal/storage"
	"github.com/agentworld/nexusworld/pkg/models"
)

// newTestWorld builds a World backed by a fresh in-memory store and a
// scripted provider registered under the "fake" tag, with streaming
// disabled (tests only care about the final LLMResponse, not SSE chunks).
func newTestWorld(t *testing.T) (*World, *scriptedProvider, context.Context) {
	t.Helper()
	ctx := context.Background()
	provider := newScriptedProvider()
	resolver := func(tag string) (providers.Provider, bool) {
		if tag == "fake" {
			return provider, true
		}
		return nil, false
	}
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "text", Output: io.Discard})
	w, err := CreateWorld(ctx, "world-"+uuid.NewString(), Options{
		Store:            storage.NewMemoryStore(),
		Logger:           logger,
		Resolver:         resolver,
		DisableStreaming: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Shutdown(ctx) })
	return w, provider, ctx
}

// mustCreateAgent registers an agent whose provider tag is always "fake";
// model is the scriptedProvider script key, so give every agent in a test
// its own model string.
func mustCreateAgent(t *testing.T, ctx context.Context, w *World, id, model string, turnLimit int) models.Agent {
	t.Helper()
	a, err := w.CreateAgent(ctx, models.Agent{
		ID: id, Name: id, SystemPrompt: "you are " + id,
		Provider: "fake", Model: model, TurnLimit: turnLimit,
	})
	require.NoError(t, err)
	return a
}

// mustCreateChat creates chatID and makes it the world's current chat.
func mustCreateChat(t *testing.T, ctx context.Context, w *World, chatID string) models.Chat {
	t.Helper()
	c, err := w.CreateChat(ctx, chatID)
	require.NoError(t, err)
	require.NoError(t, w.SetCurrentChat(ctx, chatID))
	return c
}

// agentMemory is a small polling accessor used throughout the orchestration
// tests, which must observe state mutated asynchronously by bus handlers
// (internal/bus.Bus.Publish dispatches every subscriber on its own
// goroutine, per internal/bus/bus.go's Publish).
func agentMemory(t *testing.T, ctx context.Context, w *World, agentID string) []models.AgentMessage {
	t.Helper()
	a, err := w.GetAgent(ctx, agentID)
	require.NoError(t, err)
	return a.Memory
}

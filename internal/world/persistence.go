package world

import (
	"context"

	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/pkg/models"
)

// setupEventPersistence attaches the listeners described by spec §4.8: every
// channel except world-activity is persisted verbatim, with SSE chunk events
// dropped (too high-frequency) and every other event's id already composed
// correctly by its publisher (internal/bus/publish.go) — message events keep
// their messageId, SSE start/end carry the composite "{messageId}-sse-{phase}"
// id, and tool/system/crud events carry a random id.
func setupEventPersistence(w *World) []*bus.Subscription {
	persist := func(ctx context.Context, ev models.Event) error {
		if ev.Type == models.EventTypeSSE && ev.SSE != nil && ev.SSE.Phase == models.SSEChunk {
			return nil
		}
		if err := w.store.AppendEvent(ctx, w.ID, ev); err != nil {
			w.recordStorageError(ctx, "AppendEvent", err)
			return nil
		}
		return nil
	}

	return []*bus.Subscription{
		w.bus.Subscribe(bus.ChannelMessage, persist),
		w.bus.Subscribe(bus.ChannelSSE, persist),
		w.bus.Subscribe(bus.ChannelTool, persist),
		w.bus.Subscribe(bus.ChannelSystem, persist),
		w.bus.Subscribe(bus.ChannelCRUD, persist),
	}
}

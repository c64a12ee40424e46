// Package bus implements the in-process publish/subscribe event bus a World
// owns: named channels (message, sse, tool, world, system, crud), fan-out to
// every subscriber, and a wrapper that catches both synchronous panics and
// asynchronous handler errors so a misbehaving subscriber never silently
// drops work — a historically observed bug class this package exists to
// close off for good.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agentworld/nexusworld/internal/observability"
	"github.com/agentworld/nexusworld/pkg/models"
)

// Channel names.
const (
	ChannelMessage = "message"
	ChannelSSE     = "sse"
	ChannelTool    = "tool"
	ChannelWorld   = "world"
	ChannelSystem  = "system"
	ChannelCRUD    = "crud"
)

// Handler receives one event. It may block; the bus runs each handler on its
// own goroutine so one slow or failing subscriber never blocks another.
type Handler func(ctx context.Context, ev models.Event) error

type subscription struct {
	id      uint64
	channel string
	handler Handler
}

// Subscription is a deregistration handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Unsubscribe detaches the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.id)
}

// Bus is a multi-producer/multi-consumer broadcast emitter. All events are
// value types; handlers must not mutate the Event they receive.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64

	logger *observability.Logger

	streamingEnabled atomic.Bool
	currentChatID    atomic.Value // string
}

// New constructs an empty Bus with streaming enabled by default.
func New(logger *observability.Logger) *Bus {
	b := &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
	b.streamingEnabled.Store(true)
	b.currentChatID.Store("")
	return b
}

// SetStreamingEnabled toggles the process-wide SSE chunk emission flag.
func (b *Bus) SetStreamingEnabled(enabled bool) {
	b.streamingEnabled.Store(enabled)
}

// StreamingEnabled reports whether SSE chunk emission is currently enabled.
func (b *Bus) StreamingEnabled() bool {
	return b.streamingEnabled.Load()
}

// SetCurrentChatID records the world's active chat, used by PublishMessage to
// stamp events that don't specify an explicit chatId.
func (b *Bus) SetCurrentChatID(chatID string) {
	b.currentChatID.Store(chatID)
}

// CurrentChatID returns the world's active chat id, or "" if none is set.
func (b *Bus) CurrentChatID() string {
	v, _ := b.currentChatID.Load().(string)
	return v
}

// Subscribe attaches handler to channel and returns a deregistration handle.
// The wrapper recovers panics and logs returned errors; neither ever
// propagates back to the publisher.
func (b *Bus) Subscribe(channel string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[channel] = append(b.subs[channel], subscription{id: id, channel: channel, handler: handler})
	return &Subscription{bus: b, id: id}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, subs := range b.subs {
		for i, s := range subs {
			if s.id == id {
				b.subs[ch] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish fans ev out to every subscriber on channel. Every subscriber's
// handler runs as its own task; a panic or returned error is logged with
// full context and never escapes to the caller.
func (b *Bus) Publish(ctx context.Context, channel string, ev models.Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	for _, s := range subs {
		go b.dispatch(ctx, s, ev)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error(ctx, "bus handler panicked", "channel", s.channel, "event_id", ev.ID, "recover", r)
			}
		}
	}()
	if err := s.handler(ctx, ev); err != nil {
		if b.logger != nil {
			b.logger.Error(ctx, "bus handler error", "channel", s.channel, "event_id", ev.ID, "error", err)
		}
	}
}

package world

import (
	"context"
	"sync"

	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/internal/observability"
)

// ActivityTracker is a monotonic counter of in-flight agent orchestrations
// with paired begin/complete tokens (spec §4.6). On increment to >0 it
// emits response-start; on decrement with work remaining it emits
// response-end; on decrement to 0 it emits idle. Idle is the sole trigger
// for chat-title generation (subscribers.go), guaranteeing exactly one title
// update per conversation turn regardless of agent count.
type ActivityTracker struct {
	mu      sync.Mutex
	pending int
	bus     *bus.Bus
	logger  *observability.Logger
}

// Token is returned by Begin; callers must call Complete exactly once.
type Token struct {
	t *ActivityTracker
	done bool
}

// NewActivityTracker constructs a tracker that emits world-channel events on b.
func NewActivityTracker(b *bus.Bus, logger *observability.Logger) *ActivityTracker {
	return &ActivityTracker{bus: b, logger: logger}
}

// Begin records one pending operation starting. reason is used only for
// logging context.
func (t *ActivityTracker) Begin(ctx context.Context, reason string) *Token {
	t.mu.Lock()
	t.pending++
	pending := t.pending
	t.mu.Unlock()

	if pending == 1 {
		bus.PublishWorldEvent(ctx, t.bus, "response-start", pending)
	}
	if t.logger != nil {
		t.logger.Debug(ctx, "activity begin", "reason", reason, "pending", pending)
	}
	return &Token{t: t}
}

// Complete marks the token's operation finished. Safe to call at most once;
// subsequent calls are no-ops (defensive against double-complete bugs).
func (tok *Token) Complete(ctx context.Context) {
	if tok == nil || tok.done {
		return
	}
	tok.done = true
	t := tok.t

	t.mu.Lock()
	t.pending--
	if t.pending < 0 {
		t.pending = 0
	}
	pending := t.pending
	t.mu.Unlock()

	if pending == 0 {
		bus.PublishWorldEvent(ctx, t.bus, "idle", 0)
	} else {
		bus.PublishWorldEvent(ctx, t.bus, "response-end", pending)
	}
}

// Pending returns the current count of in-flight orchestrations.
func (t *ActivityTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

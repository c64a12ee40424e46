// Package world implements the World orchestration layer described by
// SPEC_FULL.md §4: the agent/tool message subscribers, the iterative LLM
// orchestrator, message preparation, the world activity tracker, and event
// persistence, all wired against internal/bus, internal/storage,
// internal/approval, internal/mention, and internal/providers.
//
// Grounded on internal/agent/loop.go's AgenticLoop state machine (turn/
// iteration caps, sanitizeLoopConfig defaulting idiom), generalised from a
// single-agent runtime to a multi-agent, bus-driven world per spec §2/§5.
// Per-agent serialisation (mailbox.go) is a small purpose-built mutex, not
// an adaptation of the teacher's general-purpose concurrency primitives.
package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/internal/observability"
	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/internal/storage"
	"github.com/agentworld/nexusworld/pkg/models"
)

// ProviderResolver resolves an agent's configured provider tag ("openai",
// "anthropic", "google") to a concrete adapter. Worlds are provider-agnostic;
// callers supply this so tests can inject fakes.
type ProviderResolver func(tag string) (providers.Provider, bool)

// Options configures a World at load/create time.
type Options struct {
	Store            storage.Store
	Logger           *observability.Logger
	Metrics          *observability.Metrics
	Resolver         ProviderResolver
	Tools *ToolRegistry
	// DisableStreaming turns off SSE chunk emission. Streaming defaults to
	// enabled per spec §4.1.
	DisableStreaming bool
	// ErrorLogSize bounds the per-world storage-error ring buffer (spec §7).
	// Defaults to 100 when zero.
	ErrorLogSize int
}

// World owns an in-memory event bus, a set of Agents, a set of Chats, and a
// reference to durable storage. It is the sole unit of isolation: nothing
// here ever reaches into another World's state (spec §1 Non-goals).
type World struct {
	ID string

	store    storage.Store
	bus      *bus.Bus
	logger   *observability.Logger
	metrics  *observability.Metrics
	resolver ProviderResolver
	tools    *ToolRegistry

	mu            sync.RWMutex
	agents        map[string]*models.Agent
	chats         map[string]*models.Chat
	currentChatID string

	activity *ActivityTracker
	errorLog *ErrorLog
	mailbox  *agentMailbox

	subs []*bus.Subscription
}

// CreateWorld persists a brand-new world record and returns the loaded
// World, with listeners already attached (same as GetWorld).
func CreateWorld(ctx context.Context, worldID string, opts Options) (*World, error) {
	w := models.NewWorld(worldID, time.Now())
	if err := opts.Store.CreateWorld(ctx, w); err != nil {
		return nil, fmt.Errorf("create world %s: %w", worldID, err)
	}
	return GetWorld(ctx, worldID, opts)
}

// GetWorld loads worldID from storage and attaches the persistence and
// activity listeners described by spec §4.6/§4.8. Callers must call
// Shutdown to detach listeners when done with the World.
func GetWorld(ctx context.Context, worldID string, opts Options) (*World, error) {
	rec, err := opts.Store.GetWorld(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("load world %s: %w", worldID, err)
	}
	agentList, err := opts.Store.ListAgents(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("load agents for world %s: %w", worldID, err)
	}
	chatList, err := opts.Store.ListChats(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("load chats for world %s: %w", worldID, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
	}
	errSize := opts.ErrorLogSize
	if errSize <= 0 {
		errSize = 100
	}

	b := bus.New(logger)
	b.SetStreamingEnabled(!opts.DisableStreaming)
	b.SetCurrentChatID(rec.CurrentChatID)

	tools := opts.Tools
	if tools == nil {
		tools = NewToolRegistry()
	}

	w := &World{
		ID:            worldID,
		store:         opts.Store,
		bus:           b,
		logger:        logger,
		metrics:       opts.Metrics,
		resolver:      opts.Resolver,
		tools:         tools,
		agents:        make(map[string]*models.Agent, len(agentList)),
		chats:         make(map[string]*models.Chat, len(chatList)),
		currentChatID: rec.CurrentChatID,
		activity:      NewActivityTracker(b, logger),
		errorLog:      NewErrorLog(errSize),
		mailbox:       newAgentMailbox(),
	}
	for i := range agentList {
		a := agentList[i]
		w.agents[a.ID] = &a
	}
	for i := range chatList {
		c := chatList[i]
		w.chats[c.ID] = &c
	}

	w.subs = append(w.subs, setupEventPersistence(w)...)
	w.subs = append(w.subs, setupActivityListener(w))
	for _, a := range w.agents {
		w.subs = append(w.subs, subscribeAgent(w, a.ID)...)
	}
	return w, nil
}

// DeleteWorld detaches listeners, removes every chat/agent, and deletes the
// world record from storage.
func DeleteWorld(ctx context.Context, worldID string, opts Options) error {
	w, err := GetWorld(ctx, worldID, opts)
	if err != nil {
		return err
	}
	w.Shutdown(ctx)
	for id := range w.agents {
		_ = opts.Store.DeleteAgent(ctx, worldID, id)
	}
	for id := range w.chats {
		_ = opts.Store.DeleteChat(ctx, worldID, id)
	}
	return opts.Store.DeleteWorld(ctx, worldID)
}

// Shutdown detaches every listener this World registered. Safe to call more
// than once. It does not close the underlying store — callers own that.
func (w *World) Shutdown(ctx context.Context) {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Bus returns the world's event bus, for callers that need to subscribe
// externally (a UI, a transport adapter — both out of scope per spec §1).
func (w *World) Bus() *bus.Bus { return w.bus }

// CurrentChatID returns the world's active chat id, or "" if none is set.
func (w *World) CurrentChatID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentChatID
}

// SetCurrentChat updates the world's active chat, the only sanctioned
// mutator of currentChatId (spec §5). This also invalidates session-scope
// tool approvals, whose validity is defined relative to the current chat
// (spec §4.4).
func (w *World) SetCurrentChat(ctx context.Context, chatID string) error {
	w.mu.Lock()
	w.currentChatID = chatID
	w.mu.Unlock()
	w.bus.SetCurrentChatID(chatID)

	rec, err := w.store.GetWorld(ctx, w.ID)
	if err != nil {
		return err
	}
	rec.CurrentChatID = chatID
	return w.store.UpdateWorld(ctx, rec)
}

// ErrorLog returns the bounded storage-error log (spec §7).
func (w *World) ErrorLog() []ErrorEntry { return w.errorLog.Entries() }

func (w *World) recordStorageError(ctx context.Context, op string, err error) {
	w.errorLog.Record(op, err)
	w.logger.Error(ctx, "storage operation failed", "op", op, "error", err)
	if w.metrics != nil {
		w.metrics.RecordStorageError(op)
	}
}

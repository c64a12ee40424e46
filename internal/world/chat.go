package world

import (
	"context"
	"time"

	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/pkg/models"
)

// CreateChat persists a new chat (defaulting to the NewChatTitle placeholder)
// and caches it.
func (w *World) CreateChat(ctx context.Context, chatID string) (models.Chat, error) {
	c := models.NewChat(chatID, time.Now())
	if err := w.store.CreateChat(ctx, w.ID, c); err != nil {
		return models.Chat{}, err
	}
	w.mu.Lock()
	w.chats[c.ID] = &c
	w.mu.Unlock()
	bus.PublishCRUDEvent(ctx, w.bus, models.CRUDPayload{Entity: "chat", Op: "create", ID: c.ID})
	return c, nil
}

// GetChat returns the cached chat, falling back to storage on a cold cache.
func (w *World) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	w.mu.RLock()
	cached, ok := w.chats[chatID]
	w.mu.RUnlock()
	if ok {
		return *cached, nil
	}
	c, err := w.store.GetChat(ctx, w.ID, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	w.mu.Lock()
	w.chats[chatID] = &c
	w.mu.Unlock()
	return c, nil
}

// SaveChat persists an updated chat (e.g. a regenerated title) and refreshes
// the cache.
func (w *World) SaveChat(ctx context.Context, c models.Chat) error {
	if err := w.store.UpdateChat(ctx, w.ID, c); err != nil {
		w.recordStorageError(ctx, "UpdateChat", err)
		return err
	}
	w.mu.Lock()
	w.chats[c.ID] = &c
	w.mu.Unlock()
	return nil
}

// DeleteChat removes chatID from storage and the cache. If chatID was the
// current chat, callers should also clear it via SetCurrentChat — this
// invalidates every session-scope tool approval for that chat (spec §4.4).
func (w *World) DeleteChat(ctx context.Context, chatID string) error {
	if err := w.store.DeleteChat(ctx, w.ID, chatID); err != nil {
		return err
	}
	w.mu.Lock()
	delete(w.chats, chatID)
	w.mu.Unlock()
	bus.PublishCRUDEvent(ctx, w.bus, models.CRUDPayload{Entity: "chat", Op: "delete", ID: chatID})
	return nil
}

// ListChats returns every chat currently cached in the world.
func (w *World) ListChats() []models.Chat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.Chat, 0, len(w.chats))
	for _, c := range w.chats {
		out = append(out, *c)
	}
	return out
}

package world

import (
	"context"
	"fmt"
	"time"

	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/pkg/models"
)

// CreateAgent persists a new agent (with default turn limit applied if
// unset), attaches its two message-channel subscriptions (spec §4.2), and
// publishes a CRUD event.
func (w *World) CreateAgent(ctx context.Context, a models.Agent) (models.Agent, error) {
	if a.TurnLimit <= 0 {
		a.TurnLimit = models.DefaultTurnLimit
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := w.store.CreateAgent(ctx, w.ID, a); err != nil {
		return models.Agent{}, fmt.Errorf("create agent %s: %w", a.ID, err)
	}

	w.mu.Lock()
	clone := a.Clone()
	w.agents[a.ID] = &clone
	w.subs = append(w.subs, subscribeAgent(w, a.ID)...)
	w.mu.Unlock()

	bus.PublishCRUDEvent(ctx, w.bus, models.CRUDPayload{Entity: "agent", Op: "create", ID: a.ID})
	return a, nil
}

// GetAgent returns the in-memory cached copy of agentID, falling back to
// storage on a cold cache.
func (w *World) GetAgent(ctx context.Context, agentID string) (models.Agent, error) {
	w.mu.RLock()
	cached, ok := w.agents[agentID]
	w.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}
	a, err := w.store.GetAgent(ctx, w.ID, agentID)
	if err != nil {
		return models.Agent{}, err
	}
	w.mu.Lock()
	clone := a.Clone()
	w.agents[agentID] = &clone
	w.mu.Unlock()
	return a, nil
}

// SaveAgent persists a (presumably mutated) agent record and refreshes the
// in-memory cache. Storage enforces the messageId invariant (spec §4.10);
// a failure here is a storage failure per spec §7 and is recorded, not
// surfaced as a fatal error to the orchestrator.
func (w *World) SaveAgent(ctx context.Context, a models.Agent) error {
	a.UpdatedAt = time.Now()
	if err := w.store.SaveAgent(ctx, w.ID, a); err != nil {
		w.recordStorageError(ctx, "SaveAgent", err)
		return err
	}
	w.mu.Lock()
	clone := a.Clone()
	w.agents[a.ID] = &clone
	w.mu.Unlock()
	return nil
}

// DeleteAgent removes agentID from storage and the in-memory cache.
func (w *World) DeleteAgent(ctx context.Context, agentID string) error {
	if err := w.store.DeleteAgent(ctx, w.ID, agentID); err != nil {
		return err
	}
	w.mu.Lock()
	delete(w.agents, agentID)
	w.mu.Unlock()
	bus.PublishCRUDEvent(ctx, w.bus, models.CRUDPayload{Entity: "agent", Op: "delete", ID: agentID})
	return nil
}

// ListAgents returns every agent currently cached in the world.
func (w *World) ListAgents() []models.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a.Clone())
	}
	return out
}

// appendMemory appends msg to agentID's memory and saves. The caller is
// responsible for stamping msg.MessageID before calling (storage rejects
// unstamped entries).
func (w *World) appendMemory(ctx context.Context, agentID string, msg models.AgentMessage) (models.Agent, error) {
	a, err := w.GetAgent(ctx, agentID)
	if err != nil {
		return models.Agent{}, err
	}
	a.Memory = append(a.Memory, msg)
	if err := w.SaveAgent(ctx, a); err != nil {
		return models.Agent{}, err
	}
	return a, nil
}

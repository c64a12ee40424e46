package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/agentworld/nexusworld/pkg/models"
)

type worldRecord struct {
	world  models.World
	agents map[string]models.Agent
	chats  map[string]models.Chat
	events []models.Event
}

// MemoryStore is an in-memory Store, used for tests and the worldctl demo
// harness. It mirrors the teacher's MemoryAgentStore/MemoryChannelConnectionStore
// mutex-guarded map idiom, generalised to the full World/Agent/Chat/Event
// surface and adapted to defensively clone on every read and write so callers
// can never mutate the authoritative state by holding a reference.
type MemoryStore struct {
	mu     sync.RWMutex
	worlds map[string]*worldRecord
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{worlds: make(map[string]*worldRecord)}
}

func (s *MemoryStore) CreateWorld(ctx context.Context, world models.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.worlds[world.ID]; exists {
		return ErrAlreadyExists
	}
	s.worlds[world.ID] = &worldRecord{
		world:  world,
		agents: make(map[string]models.Agent),
		chats:  make(map[string]models.Chat),
	}
	return nil
}

func (s *MemoryStore) GetWorld(ctx context.Context, worldID string) (models.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return models.World{}, ErrNotFound
	}
	return rec.world, nil
}

func (s *MemoryStore) UpdateWorld(ctx context.Context, world models.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[world.ID]
	if !ok {
		return ErrNotFound
	}
	rec.world = world
	return nil
}

func (s *MemoryStore) DeleteWorld(ctx context.Context, worldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.worlds[worldID]; !ok {
		return ErrNotFound
	}
	delete(s.worlds, worldID)
	return nil
}

func (s *MemoryStore) CreateAgent(ctx context.Context, worldID string, agent models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := rec.agents[agent.ID]; exists {
		return ErrAlreadyExists
	}
	if err := validateMemory(agent.ID, agent.Memory); err != nil {
		return err
	}
	rec.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, worldID, agentID string) (models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return models.Agent{}, ErrNotFound
	}
	agent, ok := rec.agents[agentID]
	if !ok {
		return models.Agent{}, ErrNotFound
	}
	return agent.Clone(), nil
}

func (s *MemoryStore) SaveAgent(ctx context.Context, worldID string, agent models.Agent) error {
	if err := validateMemory(agent.ID, agent.Memory); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	rec.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryStore) SaveAgents(ctx context.Context, worldID string, agents []models.Agent) error {
	for _, a := range agents {
		if err := validateMemory(a.ID, a.Memory); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	for _, a := range agents {
		rec.agents[a.ID] = a.Clone()
	}
	return nil
}

func (s *MemoryStore) ListAgents(ctx context.Context, worldID string) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Agent, 0, len(rec.agents))
	for _, a := range rec.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, worldID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := rec.agents[agentID]; !ok {
		return ErrNotFound
	}
	delete(rec.agents, agentID)
	return nil
}

func (s *MemoryStore) CreateChat(ctx context.Context, worldID string, chat models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := rec.chats[chat.ID]; exists {
		return ErrAlreadyExists
	}
	rec.chats[chat.ID] = chat
	return nil
}

func (s *MemoryStore) GetChat(ctx context.Context, worldID, chatID string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return models.Chat{}, ErrNotFound
	}
	chat, ok := rec.chats[chatID]
	if !ok {
		return models.Chat{}, ErrNotFound
	}
	return chat, nil
}

func (s *MemoryStore) UpdateChat(ctx context.Context, worldID string, chat models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := rec.chats[chat.ID]; !ok {
		return ErrNotFound
	}
	rec.chats[chat.ID] = chat
	return nil
}

// DeleteChat removes chat and cascade-deletes its messages and events, per
// the data-model lifecycle rule (spec §3).
func (s *MemoryStore) DeleteChat(ctx context.Context, worldID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := rec.chats[chatID]; !ok {
		return ErrNotFound
	}
	delete(rec.chats, chatID)

	kept := rec.events[:0]
	for _, ev := range rec.events {
		if ev.ChatID != chatID {
			kept = append(kept, ev)
		}
	}
	rec.events = kept

	for id, agent := range rec.agents {
		filtered := agent.Memory[:0]
		for _, m := range agent.Memory {
			if m.ChatID != chatID {
				filtered = append(filtered, m)
			}
		}
		agent.Memory = filtered
		rec.agents[id] = agent
	}
	return nil
}

func (s *MemoryStore) ListChats(ctx context.Context, worldID string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Chat, 0, len(rec.chats))
	for _, c := range rec.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, worldID string, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return ErrNotFound
	}
	rec.events = append(rec.events, ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, worldID, chatID string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Event, 0)
	for _, ev := range rec.events {
		if ev.ChatID == chatID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.worlds[worldID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.AgentMessage, 0)
	for _, agent := range rec.agents {
		for _, m := range agent.Memory {
			if m.ChatID == chatID {
				out = append(out, m.Clone())
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

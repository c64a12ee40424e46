// Package storage defines the pluggable persistence contract a World is
// loaded against: world/agent/chat CRUD, event append/query, and memory
// query, plus two reference backends (in-memory and SQLite).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentworld/nexusworld/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup by id finds nothing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by a Create call whose id is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// InvalidMessageError reports that one or more memory entries were rejected
// by SaveAgent/SaveAgents for lacking a messageId (spec §4.10, §8).
type InvalidMessageError struct {
	AgentID string
	Count   int
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("agent %s: %d message(s) missing messageId", e.AgentID, e.Count)
}

// Store is the persistence contract a World is loaded against. Every method
// is safe for concurrent use; backends are responsible for their own
// internal locking (spec §5 "storage backends are responsible for their own
// locking").
type Store interface {
	CreateWorld(ctx context.Context, world models.World) error
	GetWorld(ctx context.Context, worldID string) (models.World, error)
	UpdateWorld(ctx context.Context, world models.World) error
	DeleteWorld(ctx context.Context, worldID string) error

	CreateAgent(ctx context.Context, worldID string, agent models.Agent) error
	GetAgent(ctx context.Context, worldID, agentID string) (models.Agent, error)
	// SaveAgent persists agent, including its memory. It MUST fail with
	// *InvalidMessageError if any memory entry lacks a messageId.
	SaveAgent(ctx context.Context, worldID string, agent models.Agent) error
	// SaveAgents is a batch form of SaveAgent; validation applies per-agent.
	SaveAgents(ctx context.Context, worldID string, agents []models.Agent) error
	ListAgents(ctx context.Context, worldID string) ([]models.Agent, error)
	DeleteAgent(ctx context.Context, worldID, agentID string) error

	CreateChat(ctx context.Context, worldID string, chat models.Chat) error
	GetChat(ctx context.Context, worldID, chatID string) (models.Chat, error)
	UpdateChat(ctx context.Context, worldID string, chat models.Chat) error
	DeleteChat(ctx context.Context, worldID, chatID string) error
	ListChats(ctx context.Context, worldID string) ([]models.Chat, error)

	// AppendEvent persists one event; never mutated once appended.
	AppendEvent(ctx context.Context, worldID string, ev models.Event) error
	// ListEvents returns events for worldID scoped to chatID (empty chatID
	// scopes to the null-chat bucket per the data-model chat-isolation rule).
	ListEvents(ctx context.Context, worldID, chatID string) ([]models.Event, error)

	// QueryMemory returns every agent's memory entries stamped with chatID,
	// across all agents in worldID, in no particular cross-agent order.
	QueryMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error)

	Close() error
}

// validateMemory returns an *InvalidMessageError if any message in memory
// lacks a messageId.
func validateMemory(agentID string, memory []models.AgentMessage) error {
	missing := 0
	for _, m := range memory {
		if m.MessageID == "" {
			missing++
		}
	}
	if missing > 0 {
		return &InvalidMessageError{AgentID: agentID, Count: missing}
	}
	return nil
}

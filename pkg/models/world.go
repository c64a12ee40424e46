package models

import "time"

// World is the top-level container of agents, chats, events, and the bus. All
// dynamic behaviour happens inside one world; a world never references
// another world's state.
type World struct {
	ID            string    `json:"worldId"`
	CurrentChatID string    `json:"currentChatId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewWorld constructs a World with no current chat set.
func NewWorld(id string, createdAt time.Time) World {
	return World{ID: id, CreatedAt: createdAt}
}

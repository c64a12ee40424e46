package models

import "time"

// NewChatTitle is the initial display name of every created chat. The world
// activity tracker regenerates a title from conversation content only while
// the chat still carries this placeholder.
const NewChatTitle = "New Chat"

// Chat is a logical conversation grouping within a world. Every message and
// event carries an optional ChatID; a world has at most one current chat.
type Chat struct {
	ID        string    `json:"chatId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewChat constructs a Chat with the default placeholder name.
func NewChat(id string, createdAt time.Time) Chat {
	return Chat{ID: id, Name: NewChatTitle, CreatedAt: createdAt}
}

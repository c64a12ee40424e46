// Package models holds the data types shared across the world runtime:
// agents, chats, messages, and bus events.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author type of an AgentMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall represents an LLM's request to execute a named tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolCallStatus tracks completion of a tool_call referenced from an
// assistant turn. It is the only field permitted to mutate in place on an
// otherwise append-only memory entry.
type ToolCallStatus struct {
	Complete bool `json:"complete"`
	Result   any  `json:"result,omitempty"`
}

// AgentMessage is one entry in an agent's memory, or an event published on
// the message channel of the bus. ChatID, AgentID, Sender, ReplyToMessageID,
// ToolCalls, ToolCallID, and ToolCallStatus are all optional depending on role.
type AgentMessage struct {
	Role             Role                      `json:"role"`
	Content          string                    `json:"content"`
	MessageID        string                    `json:"messageId"`
	ReplyToMessageID string                    `json:"replyToMessageId,omitempty"`
	ChatID           string                    `json:"chatId,omitempty"`
	AgentID          string                    `json:"agentId,omitempty"`
	Sender           string                    `json:"sender,omitempty"`
	ToolCalls        []ToolCall                `json:"tool_calls,omitempty"`
	ToolCallID       string                    `json:"tool_call_id,omitempty"`
	ToolCallStatus   map[string]ToolCallStatus `json:"toolCallStatus,omitempty"`
	CreatedAt        time.Time                 `json:"createdAt,omitempty"`
}

// Clone returns a defensive deep copy so callers can hand out memory
// snapshots without letting readers mutate the agent's authoritative state.
func (m AgentMessage) Clone() AgentMessage {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(c.ToolCalls, m.ToolCalls)
	}
	if m.ToolCallStatus != nil {
		c.ToolCallStatus = make(map[string]ToolCallStatus, len(m.ToolCallStatus))
		for k, v := range m.ToolCallStatus {
			c.ToolCallStatus[k] = v
		}
	}
	return c
}

// ToolResultEnvelope is the one sanctioned payload shape for a role=tool
// message, produced only by bus.PublishToolResult. Decision is "approve" or
// "deny"; Scope is "once" or "session" and only meaningful on approval.
type ToolResultEnvelope struct {
	Type             string         `json:"__type"`
	ToolCallID       string         `json:"tool_call_id"`
	Decision         string         `json:"decision"`
	Scope            string         `json:"scope,omitempty"`
	ToolName         string         `json:"toolName"`
	ToolArgs         map[string]any `json:"toolArgs,omitempty"`
	WorkingDirectory string         `json:"workingDirectory,omitempty"`
}

// EnvelopeType is the discriminator recognised by ParseMessageContent.
const EnvelopeType = "tool_result"

// ParseMessageContent decodes content as an enhanced envelope if it decodes
// as a JSON object with __type == "tool_result"; otherwise it reports ok=false
// and the caller should treat content as opaque text.
func ParseMessageContent(content string) (env ToolResultEnvelope, ok bool) {
	if content == "" {
		return ToolResultEnvelope{}, false
	}
	var probe struct {
		Type string `json:"__type"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return ToolResultEnvelope{}, false
	}
	if probe.Type != EnvelopeType {
		return ToolResultEnvelope{}, false
	}
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return ToolResultEnvelope{}, false
	}
	return env, true
}

// EncodeToolResultEnvelope renders the envelope back to its wire JSON shape,
// stamping the discriminator.
func EncodeToolResultEnvelope(env ToolResultEnvelope) (string, error) {
	env.Type = EnvelopeType
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

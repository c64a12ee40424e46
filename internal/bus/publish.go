package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentworld/nexusworld/pkg/models"
)

// humanSenders lists the exact sender strings that mark a message as
// human-authored; "user"-prefixed senders (e.g. "user:alice") also count,
// per spec §4.1.
var humanSenders = map[string]bool{
	"HUMAN": true,
	"human": true,
}

func isHumanSender(sender string) bool {
	if humanSenders[sender] {
		return true
	}
	return len(sender) >= 4 && sender[:4] == "user"
}

func classifyRole(content, sender string) models.Role {
	if _, ok := models.ParseMessageContent(content); ok {
		return models.RoleTool
	}
	if isHumanSender(sender) {
		return models.RoleUser
	}
	return models.RoleAssistant
}

// PublishMessage emits a message event on ChannelMessage. messageId is
// generated if empty. Role is derived from content/sender per spec §4.1:
// an enhanced tool_result envelope is always role=tool; else a human-pattern
// sender is role=user; otherwise role=assistant. chatId falls back to the
// bus's current chat if unset. PublishMessage never fails — an emission
// problem is a bus-handler concern, not a publisher concern.
func PublishMessage(ctx context.Context, b *Bus, content, sender, chatID, messageID, replyToMessageID string) models.Event {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if chatID == "" {
		chatID = b.CurrentChatID()
	}
	role := classifyRole(content, sender)

	msg := models.AgentMessage{
		Role:             role,
		Content:          content,
		MessageID:        messageID,
		ReplyToMessageID: replyToMessageID,
		ChatID:           chatID,
		Sender:           sender,
		CreatedAt:        time.Now(),
	}
	ev := models.Event{
		ID:        messageID,
		Type:      models.EventTypeMessage,
		Sender:    sender,
		Content:   content,
		ChatID:    chatID,
		Timestamp: msg.CreatedAt,
		Message:   &msg,
	}
	b.Publish(ctx, ChannelMessage, ev)
	return ev
}

// ToolResultRequest is the argument bundle for PublishToolResult, mirroring
// the wire shape of models.ToolResultEnvelope minus the __type discriminator.
type ToolResultRequest struct {
	ToolCallID       string
	Decision         string
	Scope            string
	ToolName         string
	ToolArgs         map[string]any
	WorkingDirectory string
	ChatID           string
}

// PublishToolResult is the ONLY sanctioned way to produce a role=tool
// message (spec §4.1): it wraps req in the enhanced envelope and publishes
// it with sender="human", regardless of who actually issued the decision —
// the envelope's presence is what makes the message role=tool, not the
// sender field.
func PublishToolResult(ctx context.Context, b *Bus, req ToolResultRequest) (models.Event, error) {
	env := models.ToolResultEnvelope{
		ToolCallID:       req.ToolCallID,
		Decision:         req.Decision,
		Scope:            req.Scope,
		ToolName:         req.ToolName,
		ToolArgs:         req.ToolArgs,
		WorkingDirectory: req.WorkingDirectory,
	}
	content, err := models.EncodeToolResultEnvelope(env)
	if err != nil {
		return models.Event{}, err
	}
	return PublishMessage(ctx, b, content, "human", req.ChatID, "", ""), nil
}

// PublishSSE emits one lifecycle slice of a streamed response. Chunk events
// are suppressed when streaming is disabled; start/end always emit so UIs
// can still observe response boundaries.
func PublishSSE(ctx context.Context, b *Bus, agentName string, phase models.SSEPhase, messageID, content string, usage map[string]int) {
	if phase == models.SSEChunk && !b.StreamingEnabled() {
		return
	}
	payload := models.SSEPayload{AgentName: agentName, Phase: phase, MessageID: messageID, Content: content, Usage: usage}
	ev := models.Event{
		ID:        sseEventID(messageID, phase),
		Type:      models.EventTypeSSE,
		AgentName: agentName,
		Content:   content,
		ChatID:    b.CurrentChatID(),
		Timestamp: time.Now(),
		SSE:       &payload,
	}
	b.Publish(ctx, ChannelSSE, ev)
}

// sseEventID composes the persistence-friendly id described by spec §4.8:
// start/end get deterministic composite ids so event persistence can avoid
// UNIQUE-constraint collisions with the originating message; chunks (never
// persisted) get a random id since nothing depends on it being stable.
func sseEventID(messageID string, phase models.SSEPhase) string {
	switch phase {
	case models.SSEStart:
		return messageID + "-sse-start"
	case models.SSEEnd:
		return messageID + "-sse-end"
	default:
		return uuid.NewString()
	}
}

// PublishToolEvent emits a tool-lifecycle marker (requested/denied/
// approval-required/executed — the concrete kind lives in payload.Kind).
func PublishToolEvent(ctx context.Context, b *Bus, chatID string, payload models.ToolEventPayload) models.Event {
	ev := models.Event{
		ID:        uuid.NewString(),
		Type:      models.EventTypeTool,
		ChatID:    chatID,
		Timestamp: time.Now(),
		Tool:      &payload,
	}
	b.Publish(ctx, ChannelTool, ev)
	return ev
}

// PublishCRUDEvent emits a create/update/delete notice for a world-owned
// entity (agent, chat).
func PublishCRUDEvent(ctx context.Context, b *Bus, payload models.CRUDPayload) models.Event {
	ev := models.Event{
		ID:        uuid.NewString(),
		Type:      models.EventTypeCRUD,
		Timestamp: time.Now(),
		CRUD:      &payload,
	}
	b.Publish(ctx, ChannelCRUD, ev)
	return ev
}

// PublishSystemEvent emits a system-channel notice, e.g. chat-title-updated
// or a turn-limit marker.
func PublishSystemEvent(ctx context.Context, b *Bus, chatID, content string, payload models.SystemPayload) models.Event {
	ev := models.Event{
		ID:        uuid.NewString(),
		Type:      models.EventTypeSystem,
		Content:   content,
		ChatID:    chatID,
		Timestamp: time.Now(),
		System:    &payload,
	}
	b.Publish(ctx, ChannelSystem, ev)
	return ev
}

// PublishWorldEvent emits an activity-tracker marker (response-start,
// response-end, idle) carrying the current pendingOperations count.
func PublishWorldEvent(ctx context.Context, b *Bus, kind string, pending int) models.Event {
	payload := models.WorldPayload{Kind: kind, PendingOperations: pending}
	ev := models.Event{
		ID:        uuid.NewString(),
		Type:      models.EventTypeWorld,
		Timestamp: time.Now(),
		World:     &payload,
	}
	b.Publish(ctx, ChannelWorld, ev)
	return ev
}

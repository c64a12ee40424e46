package world

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/agentworld/nexusworld/internal/approval"
	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/pkg/models"
)

// subscribeAgent attaches the two independent message-channel subscriptions
// spec §4.2 requires per agent: the respond-decision handler and the
// tool-result handler. Both filter the same channel differently rather than
// sharing a dispatch switch, matching the spec's "two independent
// subscriptions" wording.
func subscribeAgent(w *World, agentID string) []*bus.Subscription {
	return []*bus.Subscription{
		w.bus.Subscribe(bus.ChannelMessage, agentMessageHandler(w, agentID)),
		w.bus.Subscribe(bus.ChannelMessage, toolMessageHandler(w, agentID)),
	}
}

// agentMessageHandler implements spec §4.2.1: drop tool-role events, consult
// the respond decision, and on accept append the message to memory and run
// the orchestrator.
func agentMessageHandler(w *World, agentID string) bus.Handler {
	return func(ctx context.Context, ev models.Event) error {
		if ev.Message == nil || ev.Message.Role == models.RoleTool {
			return nil
		}
		if !ShouldAgentRespond(agentID, *ev.Message) {
			return nil
		}

		trigger := *ev.Message
		trigger.AgentID = agentID
		if trigger.MessageID == "" {
			trigger.MessageID = uuid.NewString()
		}
		if _, err := w.appendMemory(ctx, agentID, trigger); err != nil {
			return err
		}
		w.processAgentMessage(ctx, agentID, &trigger)
		return nil
	}
}

// toolMessageHandler implements spec §4.2.2: only role=tool events, the
// cross-agent hijack guard, approve/deny execution, toolCallStatus
// completion, and resumption of the LLM loop.
func toolMessageHandler(w *World, agentID string) bus.Handler {
	return func(ctx context.Context, ev models.Event) error {
		if ev.Message == nil || ev.Message.Role != models.RoleTool {
			return nil
		}
		env, ok := models.ParseMessageContent(ev.Message.Content)
		if !ok {
			return nil
		}

		agent, err := w.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		turnIdx, found := findOwningTurn(agent.Memory, env.ToolCallID)
		if !found {
			// Not this agent's tool_call_id: a different agent owns it.
			return nil
		}

		var resultContent string
		if env.Decision == string(approval.DecisionApprove) {
			if env.ToolName == "shell_cmd" {
				input, encErr := encodeToolArgs(env.ToolArgs)
				if encErr != nil {
					resultContent = "error: " + encErr.Error()
				} else if out, execErr := w.tools.Execute(ctx, agentID, "shell_cmd", input); execErr != nil {
					resultContent = "error: " + execErr.Error()
				} else {
					resultContent = out
				}
			} else {
				resultContent = declaredToolResult(env.ToolArgs)
			}
		} else {
			resultContent = "Tool call denied"
		}

		toolMsg := models.AgentMessage{
			Role:       models.RoleTool,
			Content:    resultContent,
			MessageID:  uuid.NewString(),
			ToolCallID: env.ToolCallID,
			ChatID:     ev.Message.ChatID,
			AgentID:    agentID,
			Sender:     agentID,
			CreatedAt:  ev.Timestamp,
		}

		if agent.Memory[turnIdx].ToolCallStatus == nil {
			agent.Memory[turnIdx].ToolCallStatus = make(map[string]models.ToolCallStatus)
		}
		agent.Memory[turnIdx].ToolCallStatus[env.ToolCallID] = models.ToolCallStatus{Complete: true, Result: resultContent}
		agent.Memory = append(agent.Memory, toolMsg)

		if err := w.SaveAgent(ctx, agent); err != nil {
			return err
		}

		w.bus.Publish(ctx, bus.ChannelMessage, models.Event{
			ID:        toolMsg.MessageID,
			Type:      models.EventTypeMessage,
			Sender:    toolMsg.Sender,
			Content:   toolMsg.Content,
			ChatID:    toolMsg.ChatID,
			Timestamp: toolMsg.CreatedAt,
			Message:   &toolMsg,
		})

		w.resumeAfterTool(ctx, agentID)
		return nil
	}
}

// findOwningTurn scans memory for an assistant turn whose tool_calls include
// toolCallID, enforcing the cross-agent hijack guard of spec §4.2.2.c.
func findOwningTurn(memory []models.AgentMessage, toolCallID string) (int, bool) {
	for i, m := range memory {
		if m.Role != models.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return i, true
			}
		}
	}
	return 0, false
}

// setupActivityListener attaches the world-channel idle listener of spec
// §4.2: on idle with zero pending operations, generate a chat title from
// accumulated messages iff the chat is still named NewChatTitle, emitting at
// most one chat-title-updated event per conversation turn.
func setupActivityListener(w *World) *bus.Subscription {
	return w.bus.Subscribe(bus.ChannelWorld, func(ctx context.Context, ev models.Event) error {
		if ev.World == nil || ev.World.Kind != "idle" || ev.World.PendingOperations != 0 {
			return nil
		}
		chatID := w.CurrentChatID()
		if chatID == "" {
			return nil
		}
		chat, err := w.GetChat(ctx, chatID)
		if err != nil {
			return nil
		}
		if chat.Name != models.NewChatTitle {
			return nil
		}
		title := generateChatTitle(ctx, w, chatID)
		if title == "" {
			return nil
		}
		chat.Name = title
		if err := w.SaveChat(ctx, chat); err != nil {
			return nil
		}
		bus.PublishSystemEvent(ctx, w.bus, chatID, title, models.SystemPayload{Kind: "chat-title-updated"})
		return nil
	})
}

// generateChatTitle derives a short title from the chat's earliest
// human-authored message, falling back to the first message of any role.
// A real summarising provider call is out of scope (spec §1 excludes
// automatic summarisation); this is a lightweight heuristic in its place.
func generateChatTitle(ctx context.Context, w *World, chatID string) string {
	memory, err := w.store.QueryMemory(ctx, w.ID, chatID)
	if err != nil || len(memory) == 0 {
		return ""
	}
	var pick string
	for _, m := range memory {
		if m.Role == models.RoleUser {
			pick = m.Content
			break
		}
	}
	if pick == "" {
		pick = memory[0].Content
	}
	pick = strings.TrimSpace(pick)
	const maxLen = 60
	if len(pick) > maxLen {
		pick = pick[:maxLen]
	}
	if pick == "" {
		return ""
	}
	return pick
}

package world

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentworld/nexusworld/internal/approval"
	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/internal/mention"
	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/pkg/models"
)

// maxOrchestrationIterations bounds one processAgentMessage call: a text
// response or a pending approval always returns immediately, so in practice
// only a run of trivially-safe (no-approval-needed) tool_calls ever consumes
// more than one iteration.
const maxOrchestrationIterations = 10

// processAgentMessage is the iterative LLM loop of spec §4.3.2. trigger is
// nil on resumption after a tool result — the prior message chain already in
// memory is sufficient context.
func (w *World) processAgentMessage(ctx context.Context, agentID string, trigger *models.AgentMessage) {
	token := w.activity.Begin(ctx, "agent:"+agentID)
	defer token.Complete(ctx)

	if err := w.mailbox.Acquire(ctx, agentID); err != nil {
		w.logger.Error(ctx, "orchestration mailbox acquire failed", "agent", agentID, "error", err)
		return
	}
	defer w.mailbox.Release(agentID)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "agent orchestration panicked", "agent", agentID, "recover", r)
		}
	}()

	for iteration := 0; iteration < maxOrchestrationIterations; iteration++ {
		agent, err := w.GetAgent(ctx, agentID)
		if err != nil {
			w.logger.Error(ctx, "orchestrator: load agent failed", "agent", agentID, "error", err)
			return
		}

		if trigger != nil && (isHumanOrigin(trigger.Sender) || trigger.Sender == "world") {
			agent.ResetTurnCount()
		}

		if agent.TurnLimitReached() {
			if w.metrics != nil {
				w.metrics.RecordTurnLimitReached(agentID)
			}
			bus.PublishMessage(ctx, w.bus, "@human "+turnLimitMarker, "system", w.CurrentChatID(), "", "")
			return
		}

		messages, err := PrepareMessages(ctx, w, agentID)
		if err != nil {
			w.logger.Error(ctx, "orchestrator: prepare messages failed", "agent", agentID, "error", err)
			return
		}

		provider, ok := w.resolver(agent.Provider)
		if !ok {
			w.logger.Error(ctx, "orchestrator: no provider resolved", "agent", agentID, "provider", agent.Provider)
			return
		}

		cfg := providers.Config{Model: agent.Model, Temperature: agent.Temperature}
		tools := providers.FilterClientTools(w.tools.Tools())

		messageID := uuid.NewString()
		bus.PublishSSE(ctx, w.bus, agent.Name, models.SSEStart, messageID, "", nil)
		onChunk := func(c providers.Chunk) {
			if c.Kind == providers.ChunkText {
				bus.PublishSSE(ctx, w.bus, agent.Name, models.SSEChunk, messageID, c.Text, nil)
			}
		}

		agent.LLMCallCount++
		if err := w.SaveAgent(ctx, agent); err != nil {
			w.logger.Error(ctx, "orchestrator: save agent before LLM call failed", "agent", agentID, "error", err)
			return
		}

		start := time.Now()
		resp, err := provider.StreamResponse(ctx, cfg, messages, tools, onChunk)
		duration := time.Since(start)
		if err != nil {
			bus.PublishSSE(ctx, w.bus, agent.Name, models.SSEEnd, messageID, "", nil)
			if w.metrics != nil {
				w.metrics.RecordLLMRequest(provider.Name(), agent.Model, "error", duration, 0, 0)
			}
			w.logger.Error(ctx, "orchestrator: provider call failed", "agent", agentID, "provider", provider.Name(), "error", err)
			return
		}
		bus.PublishSSE(ctx, w.bus, agent.Name, models.SSEEnd, messageID, "", map[string]int{
			"inputTokens": resp.InputTokens, "outputTokens": resp.OutputTokens,
		})
		if w.metrics != nil {
			w.metrics.RecordLLMRequest(provider.Name(), agent.Model, "ok", duration, resp.InputTokens, resp.OutputTokens)
		}

		switch resp.Type {
		case providers.ResponseText:
			w.handleTextResponse(ctx, agentID, &agent, trigger, messageID, resp.Text)
			return
		case providers.ResponseToolCalls:
			pending, err := w.handleToolCalls(ctx, agentID, &agent, trigger, messageID, resp.ToolCalls)
			if err != nil {
				w.logger.Error(ctx, "orchestrator: tool call handling failed", "agent", agentID, "error", err)
				return
			}
			if pending {
				return
			}
			// No approval needed: the tool already ran synchronously and its
			// result is in memory. Reprocess on the next iteration so the LLM
			// sees the tool result without a bus round trip.
			trigger = nil
			continue
		default:
			w.logger.Error(ctx, "orchestrator: unknown LLMResponse type", "agent", agentID, "type", resp.Type)
			return
		}
	}
	w.logger.Warn(ctx, "orchestrator: iteration cap reached", "agent", agentID, "cap", maxOrchestrationIterations)
}

// resumeAfterTool re-enters processAgentMessage with a null triggering event
// once a tool-role message has landed in memory, per spec §4.3.5.
func (w *World) resumeAfterTool(ctx context.Context, agentID string) {
	w.processAgentMessage(ctx, agentID, nil)
}

// handleToolCalls implements spec §4.3.3. Only the first tool_call is
// processed; a surplus is logged and dropped. Returns pending=true iff a
// client.requestApproval turn was raised and the loop must stop until an
// external decision arrives.
func (w *World) handleToolCalls(ctx context.Context, agentID string, agent *models.Agent, trigger *models.AgentMessage, messageID string, toolCalls []models.ToolCall) (pending bool, err error) {
	if len(toolCalls) == 0 {
		return false, nil
	}
	if len(toolCalls) > 1 {
		w.logger.Warn(ctx, "orchestrator: multiple tool_calls in one turn, processing only the first", "agent", agentID, "count", len(toolCalls))
	}
	call := toolCalls[0]
	chatID := w.CurrentChatID()
	replyTo := ""
	if trigger != nil {
		replyTo = trigger.MessageID
	}

	assistantTurn := models.AgentMessage{
		Role:             models.RoleAssistant,
		MessageID:        messageID,
		ReplyToMessageID: replyTo,
		ChatID:           chatID,
		AgentID:          agentID,
		Sender:           agentID,
		ToolCalls:        toolCalls,
		CreatedAt:        time.Now(),
	}
	agent.Memory = append(agent.Memory, assistantTurn)
	if err := w.SaveAgent(ctx, *agent); err != nil {
		return false, err
	}
	w.bus.Publish(ctx, bus.ChannelMessage, models.Event{
		ID: assistantTurn.MessageID, Type: models.EventTypeMessage, Sender: assistantTurn.Sender,
		ChatID: assistantTurn.ChatID, Timestamp: assistantTurn.CreatedAt, Message: &assistantTurn,
	})
	turnIdx := len(agent.Memory) - 1

	needsApproval := approval.NeedsApproval(call.Name, w.tools.Describe(call.Name))
	if needsApproval && approval.FindSessionApproval(agent.Memory, call.Name) {
		needsApproval = false
	}
	consumedOnceCallID := ""
	if needsApproval {
		if onceCallID, found := approval.FindOnceApproval(agent.Memory, call.Name); found {
			needsApproval = false
			consumedOnceCallID = onceCallID
		}
	}

	if !needsApproval {
		resultContent := w.executeApprovedTool(ctx, agentID, call)
		toolMsg := models.AgentMessage{
			Role: models.RoleTool, Content: resultContent, MessageID: uuid.NewString(),
			ToolCallID: call.ID, ChatID: chatID, AgentID: agentID, Sender: agentID, CreatedAt: time.Now(),
		}
		if agent.Memory[turnIdx].ToolCallStatus == nil {
			agent.Memory[turnIdx].ToolCallStatus = make(map[string]models.ToolCallStatus)
		}
		agent.Memory[turnIdx].ToolCallStatus[call.ID] = models.ToolCallStatus{Complete: true, Result: resultContent}
		if consumedOnceCallID != "" {
			markToolCallConsumed(agent.Memory, consumedOnceCallID)
		}
		agent.Memory = append(agent.Memory, toolMsg)
		if err := w.SaveAgent(ctx, *agent); err != nil {
			return false, err
		}
		w.bus.Publish(ctx, bus.ChannelMessage, models.Event{
			ID: toolMsg.MessageID, Type: models.EventTypeMessage, Sender: toolMsg.Sender,
			ChatID: toolMsg.ChatID, Content: toolMsg.Content, Timestamp: toolMsg.CreatedAt, Message: &toolMsg,
		})
		if w.metrics != nil {
			w.metrics.RecordApprovalDecision("none", "auto")
		}
		return false, nil
	}

	args := decodeToolInput(call.Input)
	approvalCallID := approval.ToolCallIDPrefix + uuid.NewString()
	reqPayload := map[string]any{
		"originalToolCall": map[string]any{
			"id": call.ID, "name": call.Name, "args": approval.RedactSensitiveArgs(args), "workingDirectory": "",
		},
		"message": fmt.Sprintf("Approve tool call %s?", call.Name),
		"options": []string{"deny", "approve_once", "approve_session"},
	}
	inputBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return false, fmt.Errorf("encode approval request: %w", err)
	}
	approvalTurn := models.AgentMessage{
		Role:             models.RoleAssistant,
		MessageID:        uuid.NewString(),
		ReplyToMessageID: messageID,
		ChatID:           chatID,
		AgentID:          agentID,
		Sender:           agentID,
		ToolCalls:        []models.ToolCall{{ID: approvalCallID, Name: "client.requestApproval", Input: inputBytes}},
		ToolCallStatus:   map[string]models.ToolCallStatus{approvalCallID: {Complete: false}},
		CreatedAt:        time.Now(),
	}
	agent.Memory = append(agent.Memory, approvalTurn)
	if err := w.SaveAgent(ctx, *agent); err != nil {
		return false, err
	}
	w.bus.Publish(ctx, bus.ChannelMessage, models.Event{
		ID: approvalTurn.MessageID, Type: models.EventTypeMessage, Sender: approvalTurn.Sender,
		ChatID: approvalTurn.ChatID, Timestamp: approvalTurn.CreatedAt, Message: &approvalTurn,
	})
	bus.PublishToolEvent(ctx, w.bus, chatID, models.ToolEventPayload{
		Kind: "approval-required", ToolCallID: call.ID, ToolName: call.Name,
	})
	return true, nil
}

// executeApprovedTool runs call against the tool registry, rendering any
// execution error as the tool result content rather than propagating it —
// the LLM sees the failure as a normal tool_call outcome.
func (w *World) executeApprovedTool(ctx context.Context, agentID string, call models.ToolCall) string {
	start := time.Now()
	out, err := w.tools.Execute(ctx, agentID, call.Name, call.Input)
	if w.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		w.metrics.RecordToolExecution(call.Name, status, time.Since(start))
	}
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

// markToolCallConsumed marks toolCallID complete on the assistant turn that
// owns it, so a spent once-scope approval (approval.FindOnceApproval) is
// never applied to a later tool call of the same name.
func markToolCallConsumed(memory []models.AgentMessage, toolCallID string) {
	for i := range memory {
		if memory[i].Role != models.RoleAssistant || memory[i].ToolCallStatus == nil {
			continue
		}
		if status, ok := memory[i].ToolCallStatus[toolCallID]; ok {
			status.Complete = true
			memory[i].ToolCallStatus[toolCallID] = status
			return
		}
	}
}

func decodeToolInput(input json.RawMessage) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// handleTextResponse implements spec §4.3.4.
func (w *World) handleTextResponse(ctx context.Context, agentID string, agent *models.Agent, trigger *models.AgentMessage, messageID, text string) {
	processed := mention.RemoveSelfMentions(text, agentID)

	if trigger != nil && trigger.Sender != "" && trigger.Sender != agentID && !mention.HasAnyMentionAtBeginning(processed) {
		if _, err := w.GetAgent(ctx, trigger.Sender); err == nil {
			processed = mention.AddAutoMention(processed, trigger.Sender)
		}
	}

	chatID := w.CurrentChatID()
	replyTo := ""
	if trigger != nil {
		replyTo = trigger.MessageID
	}
	msg := models.AgentMessage{
		Role: models.RoleAssistant, Content: processed, MessageID: messageID,
		ReplyToMessageID: replyTo, ChatID: chatID, AgentID: agentID, Sender: agentID, CreatedAt: time.Now(),
	}
	agent.Memory = append(agent.Memory, msg)
	if err := w.SaveAgent(ctx, *agent); err != nil {
		w.logger.Error(ctx, "orchestrator: save agent after text response failed", "agent", agentID, "error", err)
		return
	}
	w.bus.Publish(ctx, bus.ChannelMessage, models.Event{
		ID: msg.MessageID, Type: models.EventTypeMessage, Sender: msg.Sender,
		Content: msg.Content, ChatID: msg.ChatID, Timestamp: msg.CreatedAt, Message: &msg,
	})
}

package world

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentworld/nexusworld/internal/approval"
	"github.com/agentworld/nexusworld/pkg/models"
)

// clientToolPrefix mirrors providers.ClientToolPrefix; duplicated here (a
// plain string constant, not a dependency) so prepare.go doesn't need to
// import internal/providers just for one literal.
const clientToolPrefix = "client."

// PrepareMessages produces the sequence handed to the LLM provider for one
// orchestration turn, per spec §4.5. The dual-layer rule is absolute:
// storage keeps everything; this prepared sequence keeps only what the LLM
// should think about.
func PrepareMessages(ctx context.Context, w *World, agentID string) ([]models.AgentMessage, error) {
	agent, err := w.store.GetAgent(ctx, w.ID, agentID)
	if err != nil {
		return nil, fmt.Errorf("prepare messages: load agent %s: %w", agentID, err)
	}

	chatID := w.CurrentChatID()

	filtered := make([]models.AgentMessage, 0, len(agent.Memory))
	for _, m := range agent.Memory {
		if m.ChatID != chatID {
			continue
		}
		if m.AgentID != "" && m.AgentID != agentID {
			continue
		}
		if m.Role == models.RoleUser && !WouldAgentHaveRespondedToHistoricalMessage(agentID, m) {
			continue
		}
		filtered = append(filtered, m)
	}

	stripped := make([]models.AgentMessage, 0, len(filtered))
	for _, m := range filtered {
		if m.Role == models.RoleTool && strings.HasPrefix(m.ToolCallID, approval.ToolCallIDPrefix) {
			continue
		}
		if m.Role == models.RoleAssistant && len(m.ToolCalls) > 0 {
			m = stripClientToolCalls(m)
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
		}
		stripped = append(stripped, m)
	}

	out := make([]models.AgentMessage, 0, len(stripped)+1)
	out = append(out, models.AgentMessage{Role: models.RoleSystem, Content: agent.SystemPrompt})
	out = append(out, stripped...)
	return out, nil
}

// stripClientToolCalls drops client.* tool_calls from an assistant turn —
// they are client-facing UI artefacts (approval requests), not conversation
// the LLM should see or imitate (spec §4.5 step 6).
func stripClientToolCalls(m models.AgentMessage) models.AgentMessage {
	kept := make([]models.ToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		if strings.HasPrefix(tc.Name, clientToolPrefix) {
			continue
		}
		kept = append(kept, tc)
	}
	m.ToolCalls = kept
	return m
}

// Package approval implements the pure approval checker described by
// SPEC_FULL.md §4.4: a module that derives tool-approval state entirely from
// an agent's memory, with no separate approval store to drift out of sync.
package approval

import (
	"regexp"
	"strings"

	"github.com/agentworld/nexusworld/internal/tools/policy"
	"github.com/agentworld/nexusworld/pkg/models"
)

// Decision is the outcome of consulting memory for a given tool call.
type Decision string

const (
	// DecisionApprove means the tool call may execute immediately.
	DecisionApprove Decision = "approve"
	// DecisionDeny means an explicit denial tool result must be produced.
	DecisionDeny Decision = "deny"
	// DecisionPending means a client.requestApproval turn must be raised.
	DecisionPending Decision = "pending"
)

// Scope records how long an approval remains valid.
const (
	ScopeOnce    = "once"
	ScopeSession = "session"
)

// ToolCallIDPrefix marks tool_call_ids minted for the client.requestApproval
// pseudo-tool, so message preparation (spec §4.5 step 6) can recognise and
// strip their corresponding tool-role replies as client-facing artefacts.
const ToolCallIDPrefix = "approval-"

// dangerousKeywords drives the needsApproval heuristic (spec §4.4).
var dangerousKeywords = []string{"execute", "command", "delete", "remove", "write", "shell"}

// sensitiveArgKeyPattern matches argument keys that must be redacted before
// being echoed back in an approval prompt (spec §4.4).
var sensitiveArgKeyPattern = regexp.MustCompile(`(?i)key|password|token|secret|auth`)

// NeedsApproval reports whether toolName or description contains any
// dangerous keyword, case-insensitively.
func NeedsApproval(toolName, description string) bool {
	haystack := strings.ToLower(toolName + " " + description)
	for _, kw := range dangerousKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// RedactSensitiveArgs returns a copy of args with sensitive values replaced
// by "[REDACTED]", matched by key name against sensitiveArgKeyPattern.
func RedactSensitiveArgs(args map[string]any) map[string]any {
	redacted := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveArgKeyPattern.MatchString(k) {
			redacted[k] = "[REDACTED]"
			continue
		}
		redacted[k] = v
	}
	return redacted
}

// FindSessionApproval scans memory for a tool-role message carrying a
// ToolResultEnvelope with decision=approve, scope=session, for toolName. A
// session approval remains valid for every subsequent call of the same tool
// until world.currentChatId changes or the chat is deleted — callers are
// responsible for only passing memory already scoped to the active chat.
func FindSessionApproval(memory []models.AgentMessage, toolName string) bool {
	normalized := policy.NormalizeTool(toolName)
	for _, m := range memory {
		if m.Role != models.RoleTool {
			continue
		}
		env, ok := models.ParseMessageContent(m.Content)
		if !ok {
			continue
		}
		if env.Decision == DecisionApprove.string() && env.Scope == ScopeSession &&
			policy.NormalizeTool(env.ToolName) == normalized {
			return true
		}
	}
	return false
}

// FindOnceApproval finds an approve/once result for toolName that has not
// yet been consumed by its matching assistant tool_call — "consumed" means
// the original assistant turn's toolCallStatus for that call id is already
// marked complete. The caller supplies memory already scoped to the active
// chat and agent.
func FindOnceApproval(memory []models.AgentMessage, toolName string) (toolCallID string, found bool) {
	normalized := policy.NormalizeTool(toolName)
	for i := len(memory) - 1; i >= 0; i-- {
		m := memory[i]
		if m.Role != models.RoleTool {
			continue
		}
		env, ok := models.ParseMessageContent(m.Content)
		if !ok || env.Decision != DecisionApprove.string() || env.Scope != ScopeOnce {
			continue
		}
		if policy.NormalizeTool(env.ToolName) != normalized {
			continue
		}
		if isConsumed(memory, env.ToolCallID) {
			continue
		}
		return env.ToolCallID, true
	}
	return "", false
}

// isConsumed reports whether the assistant turn owning toolCallID already
// has a completed toolCallStatus entry for it.
func isConsumed(memory []models.AgentMessage, toolCallID string) bool {
	for _, m := range memory {
		if m.Role != models.RoleAssistant || m.ToolCallStatus == nil {
			continue
		}
		if status, ok := m.ToolCallStatus[toolCallID]; ok {
			return status.Complete
		}
	}
	return false
}

func (d Decision) string() string { return string(d) }

package world

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentworld/nexusworld/internal/approval"
	"github.com/agentworld/nexusworld/internal/bus"
	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/pkg/models"
)

func shellInput(t *testing.T, args ...string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"command": "echo", "args": args})
	require.NoError(t, err)
	return raw
}

// TestScenario_ApprovalGatedShellApprovedThenExecutes covers spec §8 scenario
// 3: the assistant turn with tool_calls persists and publishes first, the
// approval heuristic trips for shell_cmd, a client.requestApproval turn
// follows, the loop pauses, and an external approve resumes execution and
// the LLM sees the result.
func TestScenario_ApprovalGatedShellApprovedThenExecutes(t *testing.T) {
	w, provider, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	mustCreateAgent(t, ctx, w, "alice", "m-alice", 5)

	provider.script("m-alice",
		providers.LLMResponse{Type: providers.ResponseToolCalls, ToolCalls: []models.ToolCall{{ID: "tc1", Name: "shell_cmd", Input: shellInput(t, "hello-approval")}}},
		providers.LLMResponse{Type: providers.ResponseText, Text: "ran it"},
	)

	bus.PublishMessage(ctx, w.Bus(), "@alice run echo hello-approval", "human", "c1", "", "")

	// memory layout once the approval request lands: [0] human trigger,
	// [1] assistant turn with the shell_cmd tool_call, [2] the
	// client.requestApproval pseudo-tool-call turn.
	require.Eventually(t, func() bool {
		mem := agentMemory(t, ctx, w, "alice")
		return len(mem) == 3 &&
			mem[1].Role == models.RoleAssistant && len(mem[1].ToolCalls) == 1 && mem[1].ToolCalls[0].Name == "shell_cmd" &&
			mem[2].Role == models.RoleAssistant && len(mem[2].ToolCalls) == 1 && mem[2].ToolCalls[0].Name == "client.requestApproval"
	}, 2*time.Second, 10*time.Millisecond)

	approvalCallID := agentMemory(t, ctx, w, "alice")[2].ToolCalls[0].ID

	_, err := bus.PublishToolResult(ctx, w.Bus(), bus.ToolResultRequest{
		ToolCallID: approvalCallID, Decision: "approve", Scope: "once", ToolName: "shell_cmd",
		ToolArgs: map[string]any{"command": "echo", "args": []any{"hello-approval"}}, ChatID: "c1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mem := agentMemory(t, ctx, w, "alice")
		if len(mem) != 5 {
			return false
		}
		return mem[3].Role == models.RoleTool && strings.Contains(mem[3].Content, "hello-approval") &&
			mem[4].Role == models.RoleAssistant && mem[4].Content == "ran it"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestScenario_ApprovalGatedShellDenied covers spec §8 scenario 4: a denial
// records a tool-role message declaring the denial, never spawns the
// command, and the LLM acknowledges on resumption.
func TestScenario_ApprovalGatedShellDenied(t *testing.T) {
	w, provider, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	mustCreateAgent(t, ctx, w, "alice", "m-alice", 5)

	provider.script("m-alice",
		providers.LLMResponse{Type: providers.ResponseToolCalls, ToolCalls: []models.ToolCall{{ID: "tc1", Name: "shell_cmd", Input: shellInput(t, "should-not-run")}}},
		providers.LLMResponse{Type: providers.ResponseText, Text: "understood, not running that"},
	)

	bus.PublishMessage(ctx, w.Bus(), "@alice run echo should-not-run", "human", "c1", "", "")

	var approvalCallID string
	require.Eventually(t, func() bool {
		for _, m := range agentMemory(t, ctx, w, "alice") {
			for _, tc := range m.ToolCalls {
				if tc.Name == "client.requestApproval" {
					approvalCallID = tc.ID
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	_, err := bus.PublishToolResult(ctx, w.Bus(), bus.ToolResultRequest{
		ToolCallID: approvalCallID, Decision: "deny", Scope: "once", ToolName: "shell_cmd",
		ToolArgs: map[string]any{"command": "echo", "args": []any{"should-not-run"}}, ChatID: "c1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, m := range agentMemory(t, ctx, w, "alice") {
			if m.Role == models.RoleTool && m.ToolCallID == approvalCallID {
				return m.Content == "Tool call denied"
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mem := agentMemory(t, ctx, w, "alice")
		return len(mem) > 0 && mem[len(mem)-1].Content == "understood, not running that"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestScenario_MultiAgentTurnLimitHaltsThenResetsOnHumanMessage covers spec
// §8 scenario 6: after TurnLimit consecutive LLM calls with no intervening
// human/world trigger, a "Turn limit reached" notice is emitted and further
// self-mentions are ignored until a fresh human message resets the counter.
func TestScenario_MultiAgentTurnLimitHaltsThenResetsOnHumanMessage(t *testing.T) {
	w, provider, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	const limit = 3
	mustCreateAgent(t, ctx, w, "alice", "m-alice", limit)

	w.tools.Register(providers.Tool{Name: "noop", Description: "no-op test tool"}, func(ctx context.Context, agentID string, input json.RawMessage) (string, error) {
		return "noop-done", nil
	})

	for i := 0; i < limit+2; i++ {
		provider.script("m-alice", providers.LLMResponse{
			Type: providers.ResponseToolCalls,
			ToolCalls: []models.ToolCall{{ID: uuidLike(i), Name: "noop", Input: json.RawMessage(`{}`)}},
		})
	}

	bus.PublishMessage(ctx, w.Bus(), "@alice keep going", "human", "c1", "", "")

	require.Eventually(t, func() bool {
		mem := agentMemory(t, ctx, w, "alice")
		for _, m := range mem {
			if m.Sender == "system" && strings.Contains(m.Content, "Turn limit reached") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.Never(t, func() bool {
		return provider.callCount("m-alice") > limit
	}, 150*time.Millisecond, 10*time.Millisecond)

	countAfterHalt := provider.callCount("m-alice")

	provider.script("m-alice", providers.LLMResponse{Type: providers.ResponseText, Text: "resumed"})
	bus.PublishMessage(ctx, w.Bus(), "@alice one more please", "human", "c1", "", "")

	require.Eventually(t, func() bool {
		mem := agentMemory(t, ctx, w, "alice")
		return len(mem) > 0 && mem[len(mem)-1].Content == "resumed"
	}, 2*time.Second, 10*time.Millisecond)
	require.Greater(t, provider.callCount("m-alice"), countAfterHalt, "a fresh human message must reset the turn counter and allow another LLM call")
}

// TestHandleToolCalls_RespectsStandingSessionApproval exercises the
// session-approval boundary directly against handleToolCalls: a tool-role
// message already in memory carrying an approve/session envelope for
// shell_cmd (approval.FindSessionApproval) must make a brand new shell_cmd
// call skip the approval prompt entirely.
func TestHandleToolCalls_RespectsStandingSessionApproval(t *testing.T) {
	w, _, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	agent := mustCreateAgent(t, ctx, w, "alice", "m-alice", 5)

	grant, err := models.EncodeToolResultEnvelope(models.ToolResultEnvelope{
		ToolCallID: "earlier", Decision: string(approval.DecisionApprove), Scope: approval.ScopeSession, ToolName: "shell_cmd",
	})
	require.NoError(t, err)
	agent.Memory = []models.AgentMessage{
		{Role: models.RoleTool, MessageID: "m1", ChatID: "c1", ToolCallID: "earlier", Content: grant},
	}
	require.NoError(t, w.SaveAgent(ctx, agent))

	pending, err := w.handleToolCalls(ctx, "alice", &agent, nil, "msg1", []models.ToolCall{
		{ID: "tc1", Name: "shell_cmd", Input: shellInput(t, "session-covered")},
	})
	require.NoError(t, err)
	require.False(t, pending, "a standing session approval must auto-execute without raising client.requestApproval")

	mem := agentMemory(t, ctx, w, "alice")
	last := mem[len(mem)-1]
	require.Equal(t, models.RoleTool, last.Role)
	require.Contains(t, last.Content, "session-covered")
}

// TestHandleToolCalls_UnconsumedOnceApprovalAutoExecutes is the once-scope
// counterpart: an unconsumed approve/once grant covers exactly the next
// matching call.
func TestHandleToolCalls_UnconsumedOnceApprovalAutoExecutes(t *testing.T) {
	w, _, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	agent := mustCreateAgent(t, ctx, w, "alice", "m-alice", 5)

	grant, err := models.EncodeToolResultEnvelope(models.ToolResultEnvelope{
		ToolCallID: "earlier", Decision: string(approval.DecisionApprove), Scope: approval.ScopeOnce, ToolName: "shell_cmd",
	})
	require.NoError(t, err)
	agent.Memory = []models.AgentMessage{
		{
			Role: models.RoleAssistant, MessageID: "grant-turn", ChatID: "c1",
			ToolCalls:      []models.ToolCall{{ID: "earlier", Name: "shell_cmd"}},
			ToolCallStatus: map[string]models.ToolCallStatus{"earlier": {Complete: false}},
		},
		{Role: models.RoleTool, MessageID: "m1", ChatID: "c1", ToolCallID: "earlier", Content: grant},
	}
	require.NoError(t, w.SaveAgent(ctx, agent))

	pending, err := w.handleToolCalls(ctx, "alice", &agent, nil, "msg1", []models.ToolCall{
		{ID: "tc1", Name: "shell_cmd", Input: shellInput(t, "once-covered")},
	})
	require.NoError(t, err)
	require.False(t, pending, "an unconsumed once-scope approval must auto-execute without raising client.requestApproval")

	mem := agentMemory(t, ctx, w, "alice")
	last := mem[len(mem)-1]
	require.Equal(t, models.RoleTool, last.Role)
	require.Contains(t, last.Content, "once-covered")

	// the grant is now consumed: the owning assistant turn's status flips.
	for _, m := range agentMemory(t, ctx, w, "alice") {
		if m.Role == models.RoleAssistant {
			if status, ok := m.ToolCallStatus["earlier"]; ok {
				require.True(t, status.Complete, "a spent once-scope grant must be marked consumed")
			}
		}
	}
}

// TestHandleToolCalls_ConsumedOnceApprovalRePromptsForApproval shows the
// other half: once an approve/once grant's owning call is already marked
// complete, a later call of the same tool must raise a fresh approval
// request rather than reusing the spent grant.
func TestHandleToolCalls_ConsumedOnceApprovalRePromptsForApproval(t *testing.T) {
	w, _, ctx := newTestWorld(t)
	mustCreateChat(t, ctx, w, "c1")
	agent := mustCreateAgent(t, ctx, w, "alice", "m-alice", 5)

	grant, err := models.EncodeToolResultEnvelope(models.ToolResultEnvelope{
		ToolCallID: "earlier", Decision: string(approval.DecisionApprove), Scope: approval.ScopeOnce, ToolName: "shell_cmd",
	})
	require.NoError(t, err)
	agent.Memory = []models.AgentMessage{
		{
			Role: models.RoleAssistant, MessageID: "grant-turn", ChatID: "c1",
			ToolCalls:      []models.ToolCall{{ID: "earlier", Name: "shell_cmd"}},
			ToolCallStatus: map[string]models.ToolCallStatus{"earlier": {Complete: true}},
		},
		{Role: models.RoleTool, MessageID: "m1", ChatID: "c1", ToolCallID: "earlier", Content: grant},
	}
	require.NoError(t, w.SaveAgent(ctx, agent))

	pending, err := w.handleToolCalls(ctx, "alice", &agent, nil, "msg1", []models.ToolCall{
		{ID: "tc2", Name: "shell_cmd", Input: shellInput(t, "needs-new-approval")},
	})
	require.NoError(t, err)
	require.True(t, pending, "a consumed once-scope approval must not cover a later call; approval must be re-requested")

	mem := agentMemory(t, ctx, w, "alice")
	last := mem[len(mem)-1]
	require.Len(t, last.ToolCalls, 1)
	require.Equal(t, "client.requestApproval", last.ToolCalls[0].Name)
}

func uuidLike(i int) string {
	return "noop-call-" + string(rune('a'+i))
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleConstants(t *testing.T) {
	require.Equal(t, "user", string(RoleUser))
	require.Equal(t, "assistant", string(RoleAssistant))
	require.Equal(t, "system", string(RoleSystem))
	require.Equal(t, "tool", string(RoleTool))
}

func TestAgentMessageClone_Independent(t *testing.T) {
	original := AgentMessage{
		Role:      RoleAssistant,
		Content:   "",
		MessageID: "m1",
		ToolCalls: []ToolCall{{ID: "tc1", Name: "shell_cmd", Input: json.RawMessage(`{"command":"ls"}`)}},
		ToolCallStatus: map[string]ToolCallStatus{
			"tc1": {Complete: false},
		},
	}

	clone := original.Clone()
	clone.ToolCalls[0].Name = "mutated"
	clone.ToolCallStatus["tc1"] = ToolCallStatus{Complete: true}

	require.Equal(t, "shell_cmd", original.ToolCalls[0].Name)
	require.False(t, original.ToolCallStatus["tc1"].Complete)
}

func TestParseMessageContent_ToolResultEnvelope(t *testing.T) {
	env := ToolResultEnvelope{
		ToolCallID: "tc-1",
		Decision:   "approve",
		Scope:      "once",
		ToolName:   "shell_cmd",
		ToolArgs:   map[string]any{"command": "ls"},
	}
	encoded, err := EncodeToolResultEnvelope(env)
	require.NoError(t, err)

	decoded, ok := ParseMessageContent(encoded)
	require.True(t, ok)
	require.Equal(t, env.ToolCallID, decoded.ToolCallID)
	require.Equal(t, env.Decision, decoded.Decision)
	require.Equal(t, env.Scope, decoded.Scope)
	require.Equal(t, env.ToolName, decoded.ToolName)
}

func TestParseMessageContent_PlainTextIsNotEnvelope(t *testing.T) {
	_, ok := ParseMessageContent("just some chat text")
	require.False(t, ok)

	_, ok = ParseMessageContent(`{"foo":"bar"}`)
	require.False(t, ok)
}

func TestParseMessageContent_RoundTripIdempotent(t *testing.T) {
	env := ToolResultEnvelope{ToolCallID: "tc-2", Decision: "deny", ToolName: "shell_cmd"}
	encoded, err := EncodeToolResultEnvelope(env)
	require.NoError(t, err)

	decoded1, ok := ParseMessageContent(encoded)
	require.True(t, ok)
	reencoded, err := EncodeToolResultEnvelope(decoded1)
	require.NoError(t, err)
	decoded2, ok := ParseMessageContent(reencoded)
	require.True(t, ok)

	require.Equal(t, decoded1, decoded2)
}

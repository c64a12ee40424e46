package providers

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/agentworld/nexusworld/pkg/models"
)

func TestConvertMessages_RolesAndContent(t *testing.T) {
	in := []models.AgentMessage{
		{Role: models.RoleSystem, Content: "you are alice"},
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleTool, Content: "42", ToolCallID: "tc1"},
	}
	out := convertMessages(in)
	require.Len(t, out, 3)
	require.Equal(t, string(models.RoleSystem), out[0].Role)
	require.Equal(t, "you are alice", out[0].Content)
	require.Equal(t, string(models.RoleUser), out[1].Role)
	require.Equal(t, string(models.RoleTool), out[2].Role)
	require.Equal(t, "tc1", out[2].ToolCallID)
}

func TestConvertMessages_AccumulatesToolCalls(t *testing.T) {
	in := []models.AgentMessage{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "tc1", Name: "shell_cmd", Input: json.RawMessage(`{"command":"echo"}`)},
			},
		},
	}
	out := convertMessages(in)
	require.Len(t, out, 1)
	require.Len(t, out[0].ToolCalls, 1)
	require.Equal(t, "tc1", out[0].ToolCalls[0].ID)
	require.Equal(t, openai.ToolTypeFunction, out[0].ToolCalls[0].Type)
	require.Equal(t, "shell_cmd", out[0].ToolCalls[0].Function.Name)
	require.JSONEq(t, `{"command":"echo"}`, out[0].ToolCalls[0].Function.Arguments)
}

func TestConvertTools_ParsesSchema(t *testing.T) {
	tools := []Tool{
		{Name: "shell_cmd", Description: "run a command", Schema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`)},
	}
	out := convertTools(tools)
	require.Len(t, out, 1)
	require.Equal(t, openai.ToolTypeFunction, out[0].Type)
	require.Equal(t, "shell_cmd", out[0].Function.Name)
	require.Equal(t, "run a command", out[0].Function.Description)
	require.NotNil(t, out[0].Function.Parameters)
}

func TestConvertTools_InvalidSchemaFallsBackToEmptyObject(t *testing.T) {
	tools := []Tool{{Name: "broken", Schema: json.RawMessage(`not json`)}}
	out := convertTools(tools)
	require.Len(t, out, 1)
	params, ok := out[0].Function.Parameters.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "object", params["type"])
}

func TestIsRetryableError_MatchesTransientNetworkErrors(t *testing.T) {
	require.True(t, isRetryableError(errors.New("read tcp: connection reset by peer")))
	require.True(t, isRetryableError(errors.New("context deadline exceeded (timeout)")))
	require.True(t, isRetryableError(errors.New("unexpected EOF")))
}

func TestIsRetryableError_RejectsOrdinaryErrors(t *testing.T) {
	require.False(t, isRetryableError(errors.New("invalid request: missing model")))
}

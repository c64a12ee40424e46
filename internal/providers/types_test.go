package providers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterClientTools_DropsClientPrefixedTools(t *testing.T) {
	tools := []Tool{
		{Name: "shell_cmd"},
		{Name: "client.requestApproval"},
		{Name: "noop"},
		{Name: "client.anything"},
	}
	out := FilterClientTools(tools)
	require.Len(t, out, 2)
	require.Equal(t, "shell_cmd", out[0].Name)
	require.Equal(t, "noop", out[1].Name)
}

func TestFilterClientTools_EmptyAndNilInput(t *testing.T) {
	require.Empty(t, FilterClientTools(nil))
	require.Empty(t, FilterClientTools([]Tool{}))
}

func TestFilterClientTools_AllClientToolsDropped(t *testing.T) {
	out := FilterClientTools([]Tool{{Name: "client.requestApproval"}})
	require.Empty(t, out)
}

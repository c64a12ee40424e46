package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentworld/nexusworld/internal/providers"
)

// ToolExecFunc runs one tool call's input and returns the result rendered as
// the string stored in a tool-role memory entry.
type ToolExecFunc func(ctx context.Context, agentID string, input json.RawMessage) (string, error)

type registeredTool struct {
	tool providers.Tool
	exec ToolExecFunc
}

// ToolRegistry holds the tools a World advertises to LLM providers and knows
// how to execute. Schemas are generated once at registration time via
// invopop/jsonschema (spec §2.2 domain stack), not hand-written per tool.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewToolRegistry returns a registry pre-populated with this world's fixed
// tool set. shell_cmd is the only concrete tool named by the scenarios in
// spec §8; additional tools can be added via Register.
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]registeredTool)}
	r.registerShellCmd()
	return r
}

// Register adds or replaces a tool definition and its executor.
func (r *ToolRegistry) Register(tool providers.Tool, exec ToolExecFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = registeredTool{tool: tool, exec: exec}
}

// Tools returns every registered tool's schema, for handing to a provider.
// FilterClientTools is applied by the orchestrator, not here, since the
// registry never holds client.* pseudo-tools in the first place.
func (r *ToolRegistry) Tools() []providers.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool)
	}
	return out
}

// Describe returns the registered description for name, or "" if unknown —
// used by the approval heuristic, which matches dangerous keywords against
// both the tool name and its description.
func (r *ToolRegistry) Describe(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rt, ok := r.tools[name]; ok {
		return rt.tool.Description
	}
	return ""
}

// Has reports whether name is a registered tool.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute runs the named tool against input. Returns an error if the tool is
// unknown, matching the tool-message handler's "persist the declared result"
// fallback for anything other than shell_cmd (spec §4.2.2.d).
func (r *ToolRegistry) Execute(ctx context.Context, agentID, name string, input json.RawMessage) (string, error) {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return rt.exec(ctx, agentID, input)
}

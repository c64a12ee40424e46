package models

import "time"

// DefaultTurnLimit is the default maximum number of consecutive LLM calls an
// agent may make within one human/world-originated turn.
const DefaultTurnLimit = 5

// Agent is an LLM-backed participant with its own system prompt and memory.
// Memory is append-only and owned exclusively by this agent's orchestration.
type Agent struct {
	ID           string    `json:"agentId"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature,omitempty"`
	TurnLimit    int       `json:"turnLimit"`
	LLMCallCount int       `json:"llmCallCount"`
	Memory       []AgentMessage `json:"memory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the agent, including its memory, so callers
// cannot mutate the authoritative in-process state by holding a reference.
func (a Agent) Clone() Agent {
	c := a
	if a.Memory != nil {
		c.Memory = make([]AgentMessage, len(a.Memory))
		for i, m := range a.Memory {
			c.Memory[i] = m.Clone()
		}
	}
	return c
}

// ResetTurnCount zeroes the consecutive-LLM-call counter; called whenever the
// triggering message for a turn originates from a human or from "world".
func (a *Agent) ResetTurnCount() {
	a.LLMCallCount = 0
}

// TurnLimitReached reports whether the agent has exhausted its per-turn
// budget of consecutive LLM calls.
func (a Agent) TurnLimitReached() bool {
	limit := a.TurnLimit
	if limit <= 0 {
		limit = DefaultTurnLimit
	}
	return a.LLMCallCount >= limit
}

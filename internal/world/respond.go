package world

import (
	"strings"

	"github.com/agentworld/nexusworld/internal/mention"
	"github.com/agentworld/nexusworld/pkg/models"
)

// turnLimitMarker is the literal substring that marks a system notice as a
// turn-limit message (spec §4.3.1); agents never respond to it, preventing
// a turn-limit notice from re-triggering the very agent it warns.
const turnLimitMarker = "Turn limit reached"

// ShouldAgentRespond is the deterministic pure respond-decision predicate of
// spec §4.3.1, applied to every candidate incoming message and, renamed
// conceptually, reused by WouldAgentHaveRespondedToHistoricalMessage in
// message preparation (prepare.go) to filter conversation history.
func ShouldAgentRespond(agentID string, msg models.AgentMessage) bool {
	if msg.Sender == agentID {
		return false
	}
	if strings.Contains(msg.Content, turnLimitMarker) {
		return false
	}
	if msg.Sender == "system" {
		return false
	}
	if msg.Sender == "world" {
		return true
	}

	paragraphMentions := mention.ExtractParagraphBeginningMentions(msg.Content)
	anyMentions := mention.ExtractMentions(msg.Content)

	mentionsAgent := containsFold(paragraphMentions, agentID)

	if isHumanOrigin(msg.Sender) {
		if len(paragraphMentions) == 0 {
			return len(anyMentions) == 0 // public broadcast vs. mid-text commentary
		}
		return mentionsAgent
	}

	// Agent or assistant origin: accept iff addressed at a paragraph start.
	return mentionsAgent
}

// WouldAgentHaveRespondedToHistoricalMessage is ShouldAgentRespond applied to
// a message already in memory, used by message preparation (spec §4.5 step
// 5) to drop overheard-but-irrelevant chatter before it reaches the LLM.
func WouldAgentHaveRespondedToHistoricalMessage(agentID string, msg models.AgentMessage) bool {
	return ShouldAgentRespond(agentID, msg)
}

func isHumanOrigin(sender string) bool {
	if sender == "HUMAN" || sender == "human" {
		return true
	}
	return len(sender) >= 4 && strings.EqualFold(sender[:4], "user")
}

func containsFold(mentions []string, agentID string) bool {
	for _, m := range mentions {
		if strings.EqualFold(strings.TrimPrefix(m, "@"), agentID) {
			return true
		}
	}
	return false
}

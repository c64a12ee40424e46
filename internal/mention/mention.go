// Package mention implements the pure @mention parsing and rewriting rules
// used by the respond decision and by auto-mention reply targeting.
package mention

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`@[A-Za-z0-9_-]+`)

// paragraphBeginningPattern matches a mention at the start of the string or
// immediately after a newline, allowing intervening horizontal whitespace.
var paragraphBeginningPattern = regexp.MustCompile(`(?m)^[ \t]*(@[A-Za-z0-9_-]+)`)

// ExtractMentions returns every @name token in text, in order of appearance.
func ExtractMentions(text string) []string {
	return mentionPattern.FindAllString(text, -1)
}

// ExtractParagraphBeginningMentions returns only the mentions that open a
// paragraph: start-of-string, or start-of-line after optional leading
// whitespace.
func ExtractParagraphBeginningMentions(text string) []string {
	matches := paragraphBeginningPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// HasAnyMentionAtBeginning reports whether any paragraph in text opens with
// a mention.
func HasAnyMentionAtBeginning(text string) bool {
	return paragraphBeginningPattern.MatchString(text)
}

func stripAt(mention string) string {
	return strings.TrimPrefix(mention, "@")
}

func equalFold(a, b string) bool {
	return strings.EqualFold(stripAt(a), stripAt(b))
}

// AddAutoMention prepends "@target " to text iff text does not already open
// any paragraph with a mention. Idempotent.
func AddAutoMention(text string, target string) string {
	if HasAnyMentionAtBeginning(text) {
		return text
	}
	return "@" + target + " " + text
}

// RemoveSelfMentions strips only mentions of agentID from paragraph
// beginnings; mid-paragraph self-references are left untouched. Idempotent.
func RemoveSelfMentions(text string, agentID string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		loc := paragraphBeginningPattern.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		mentionStart, mentionEnd := loc[2], loc[3]
		mention := line[mentionStart:mentionEnd]
		if !equalFold(mention, "@"+agentID) {
			continue
		}
		rest := line[mentionEnd:]
		rest = strings.TrimLeft(rest, " \t")
		lines[i] = line[:mentionStart] + rest
	}
	return strings.Join(lines, "\n")
}

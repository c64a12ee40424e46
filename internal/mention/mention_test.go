package mention

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractMentions_All(t *testing.T) {
	got := ExtractMentions("hi @a1, did @a2 see this? also @a1")
	require.Equal(t, []string{"@a1", "@a2", "@a1"}, got)
}

func TestExtractParagraphBeginningMentions_StartOfString(t *testing.T) {
	got := ExtractParagraphBeginningMentions("@a1 please look at this")
	require.Equal(t, []string{"@a1"}, got)
}

func TestExtractParagraphBeginningMentions_MidTextIgnored(t *testing.T) {
	got := ExtractParagraphBeginningMentions("I think @a1 would know.")
	require.Empty(t, got)
}

func TestExtractParagraphBeginningMentions_AfterNewline(t *testing.T) {
	got := ExtractParagraphBeginningMentions("hello\n@a2 are you there?")
	require.Equal(t, []string{"@a2"}, got)
}

func TestExtractParagraphBeginningMentions_LeadingWhitespaceTolerated(t *testing.T) {
	got := ExtractParagraphBeginningMentions("line one\n   @a3 yes")
	require.Equal(t, []string{"@a3"}, got)
}

func TestHasAnyMentionAtBeginning(t *testing.T) {
	require.True(t, HasAnyMentionAtBeginning("@a1 hi"))
	require.False(t, HasAnyMentionAtBeginning("hi @a1"))
}

func TestAddAutoMention_PrependsWhenAbsent(t *testing.T) {
	got := AddAutoMention("sounds good", "a1")
	require.Equal(t, "@a1 sounds good", got)
}

func TestAddAutoMention_SkipsWhenAlreadyMentioned(t *testing.T) {
	got := AddAutoMention("@a2 sounds good", "a1")
	require.Equal(t, "@a2 sounds good", got)
}

func TestAddAutoMention_Idempotent(t *testing.T) {
	once := AddAutoMention("sounds good", "a1")
	twice := AddAutoMention(once, "a1")
	require.Equal(t, once, twice)
}

func TestRemoveSelfMentions_StripsParagraphBeginningOnly(t *testing.T) {
	got := RemoveSelfMentions("@a1 hello there, @a1", "a1")
	require.Equal(t, "hello there, @a1", got)
}

func TestRemoveSelfMentions_CaseInsensitive(t *testing.T) {
	got := RemoveSelfMentions("@A1 hello", "a1")
	require.Equal(t, "hello", got)
}

func TestRemoveSelfMentions_LeavesOtherMentions(t *testing.T) {
	got := RemoveSelfMentions("@a2 hello", "a1")
	require.Equal(t, "@a2 hello", got)
}

func TestRemoveSelfMentions_Idempotent(t *testing.T) {
	once := RemoveSelfMentions("@a1 hello @a1 again", "a1")
	twice := RemoveSelfMentions(once, "a1")
	require.Equal(t, once, twice)
}

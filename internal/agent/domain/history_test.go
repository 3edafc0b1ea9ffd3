package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"skald/internal/agent/ports"
)

func rawMsg(sender, text string) ports.RawChatMessage {
	return ports.RawChatMessage{SenderType: sender, Text: text}
}

func TestNormalizeHistoryDropsBlanksAndMapsRoles(t *testing.T) {
	raw := []ports.RawChatMessage{
		rawMsg("USER", "  hello  "),
		rawMsg("bot", "   "),
		rawMsg("Assistant", "hi there"),
	}

	out := NormalizeHistory(raw)

	require.Len(t, out, 2)
	require.Equal(t, ports.RoleUser, out[0].Role)
	require.Equal(t, "hello", out[0].Content)
	require.Equal(t, ports.RoleAssistant, out[1].Role)
	require.Equal(t, "hi there", out[1].Content)
}

func TestNormalizeHistoryKeepsOnlyAlternatingSuffix(t *testing.T) {
	raw := []ports.RawChatMessage{
		rawMsg("user", "First"),
		rawMsg("assistant", "R1"),
		rawMsg("assistant", "R2"),
		rawMsg("user", "Second"),
	}

	out := NormalizeHistory(raw)

	// The backward scan stops at the R2/R1 repeat, and the orphaned R2
	// assistant reply is dropped too.
	require.Len(t, out, 1)
	require.Equal(t, ports.RoleUser, out[0].Role)
	require.Equal(t, "Second", out[0].Content)
}

func TestNormalizeHistoryKeepsFullAlternatingLog(t *testing.T) {
	raw := []ports.RawChatMessage{
		rawMsg("user", "q1"),
		rawMsg("assistant", "a1"),
		rawMsg("user", "q2"),
		rawMsg("assistant", "a2"),
	}

	out := NormalizeHistory(raw)

	require.Len(t, out, 4)
	for i, want := range []string{"q1", "a1", "q2", "a2"} {
		require.Equal(t, want, out[i].Content)
	}
}

func TestNormalizeHistoryAllAssistantYieldsEmpty(t *testing.T) {
	raw := []ports.RawChatMessage{
		rawMsg("assistant", "a1"),
		rawMsg("bot", "a2"),
	}

	require.Empty(t, NormalizeHistory(raw))
	require.Empty(t, NormalizeHistory(nil))
}

func TestNormalizeHistoryUnknownSenderIsAssistant(t *testing.T) {
	raw := []ports.RawChatMessage{
		rawMsg("user", "q"),
		rawMsg("", "reply with empty sender"),
	}

	out := NormalizeHistory(raw)

	require.Len(t, out, 2)
	require.Equal(t, ports.RoleAssistant, out[1].Role)
}

func TestTruncateHistoryNoBudgetKeepsEverything(t *testing.T) {
	messages := []ports.Message{
		{Role: ports.RoleUser, Content: "q1"},
		{Role: ports.RoleAssistant, Content: "a1"},
	}

	require.Equal(t, messages, TruncateHistory(messages, 0))
	require.Equal(t, messages, TruncateHistory(messages, 100000))
}

func TestTruncateHistoryDropsOldestAndKeepsPairing(t *testing.T) {
	messages := []ports.Message{
		{Role: ports.RoleUser, Content: strings.Repeat("lorem ipsum dolor ", 200)},
		{Role: ports.RoleAssistant, Content: "short answer"},
		{Role: ports.RoleUser, Content: "short question"},
	}

	out := TruncateHistory(messages, 10)

	// The oversized first message is dropped; the now-leading assistant
	// reply goes with it so the history still starts with a user message.
	require.Len(t, out, 1)
	require.Equal(t, ports.RoleUser, out[0].Role)
	require.Equal(t, "short question", out[0].Content)
}

func TestTruncateHistoryAlwaysKeepsMostRecent(t *testing.T) {
	messages := []ports.Message{
		{Role: ports.RoleUser, Content: strings.Repeat("word ", 500)},
	}

	out := TruncateHistory(messages, 1)

	require.Len(t, out, 1)
	require.Equal(t, messages[0].Content, out[0].Content)
}

package domain

import (
	"strings"

	"skald/internal/agent/ports"
	"skald/internal/token"
)

// NormalizeHistory converts a backend-retrieved message log into an ordered,
// role-alternating conversation prefix usable as model input.
//
// Blank messages are dropped, sender types map case-insensitively onto roles
// ("user" is the user, anything else the assistant), and only the longest
// alternating suffix survives: scanning backward from the most recent message,
// the scan stops at the first role repeat. If the oldest kept message is an
// assistant reply with no question behind it, it is dropped too.
//
// Pure function: no I/O, no side effects. Empty or all-assistant input yields
// an empty list.
func NormalizeHistory(raw []ports.RawChatMessage) []ports.Message {
	cleaned := make([]ports.Message, 0, len(raw))
	for _, msg := range raw {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		role := ports.RoleAssistant
		if strings.EqualFold(strings.TrimSpace(msg.SenderType), "user") {
			role = ports.RoleUser
		}
		cleaned = append(cleaned, ports.Message{Role: role, Content: text})
	}

	// Longest alternating suffix, newest first.
	kept := make([]ports.Message, 0, len(cleaned))
	prevRole := ""
	for i := len(cleaned) - 1; i >= 0; i-- {
		if cleaned[i].Role == prevRole {
			break
		}
		kept = append(kept, cleaned[i])
		prevRole = cleaned[i].Role
	}

	// An assistant reply with no question behind it cannot seed a session.
	if len(kept) > 0 && kept[len(kept)-1].Role == ports.RoleAssistant {
		kept = kept[:len(kept)-1]
	}

	// Back to chronological order.
	out := make([]ports.Message, len(kept))
	for i, msg := range kept {
		out[len(kept)-1-i] = msg
	}
	return out
}

// TruncateHistory drops the oldest messages until the history fits within
// maxTokens, always keeping the most recent message. A non-positive budget
// disables truncation.
func TruncateHistory(messages []ports.Message, maxTokens int) []ports.Message {
	if maxTokens <= 0 || len(messages) == 0 {
		return messages
	}

	total := 0
	counts := make([]int, len(messages))
	for i, msg := range messages {
		counts[i] = token.Count(msg.Content)
		total += counts[i]
	}

	start := 0
	for start < len(messages)-1 && total > maxTokens {
		total -= counts[start]
		start++
	}
	// Truncation must not leave an unpaired assistant reply at the front.
	for start < len(messages)-1 && messages[start].Role == ports.RoleAssistant {
		start++
	}
	return messages[start:]
}

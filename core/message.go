package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message authored by the human user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a session's append-only conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

const titleMaxRunes = 60

// DeriveTitle produces a session title from the first user message. Long
// messages are truncated at a rune boundary with a trailing ellipsis.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "New session"
	}
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}

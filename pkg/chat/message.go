// Package chat holds the conversation data model and the bot-side logic that
// turns stored history into generation prompts and raw model output into
// presentable replies.
package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an immutable chat turn. Construct via UserMessage and
// AssistantMessage rather than struct literals so timestamps are consistent.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Session is one conversation's mutable state. Callers must not retain it
// across store calls; the store hands out SessionSnapshot copies instead.
type Session struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []Message
	MaxHistory int
}

func NewSession(maxHistory int) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New(),
		CreatedAt:  now,
		LastActive: now,
		MaxHistory: maxHistory,
	}
}

// Append adds a message, refreshes LastActive, and trims the oldest entries so
// at most MaxHistory exchanges (2*MaxHistory messages) are retained.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.LastActive = time.Now()
	if limit := 2 * s.MaxHistory; limit > 0 && len(s.Messages) > limit {
		s.Messages = append(s.Messages[:0], s.Messages[len(s.Messages)-limit:]...)
	}
}

func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// SessionSnapshot is a point-in-time copy safe to read without locks.
type SessionSnapshot struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []Message
	MaxHistory int
}

func (s *Session) Snapshot() SessionSnapshot {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return SessionSnapshot{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
		Messages:   msgs,
		MaxHistory: s.MaxHistory,
	}
}

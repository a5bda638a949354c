package models

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is a named thread of messages owned by one organization.
type Conversation struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	OrganizationID string     `json:"organization_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	MessagesCount  int        `json:"messages_count"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ConversationWithMessages is the detail payload returned by GET /conversations/{id}.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Message is one turn in a conversation.
//
// Pending and ClientKey are client-only: a provisional user message carries
// Pending=true and a generated ClientKey until the server accepts the turn.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"citations"`
	Artifacts      []Artifact `json:"artifacts,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	Pending   bool   `json:"-"`
	ClientKey string `json:"-"`
}

// Clone returns a deep copy so callers can never alias another message's slices.
func (m Message) Clone() Message {
	out := m
	if m.Citations != nil {
		out.Citations = append([]Citation(nil), m.Citations...)
	}
	if m.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(m.Artifacts))
		for i, a := range m.Artifacts {
			out.Artifacts[i] = a.Clone()
		}
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ChatResponse is the reply to a non-streaming chat request.
type ChatResponse struct {
	Message          Message    `json:"message"`
	Citations        []Citation `json:"citations"`
	Artifacts        []Artifact `json:"artifacts,omitempty"`
	ProcessingTimeMs int        `json:"processing_time_ms,omitempty"`
}

// Package chat holds the conversation store and the session that turns a
// user message into a streamed, assembled assistant reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/propchat/internal/models"
)

// Persistence is the conversation CRUD the store needs from the backend.
type Persistence interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.ConversationWithMessages, error)
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, id, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error
}

// StoreState is a copy of the store contents.
type StoreState struct {
	Conversations []models.Conversation
	Active        *models.Conversation
	Messages      []models.Message
}

// Store is the single source of truth for the conversation roster, the
// active conversation and its messages. Every change replaces the affected
// slice with a new one so published snapshots never change underneath.
type Store struct {
	backend Persistence
	logger  *slog.Logger

	mu            sync.RWMutex
	conversations []models.Conversation
	active        *models.Conversation
	messages      []models.Message
}

// NewStore creates an empty store.
func NewStore(backend Persistence, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// LoadConversations replaces the roster with the server's list.
func (s *Store) LoadConversations(ctx context.Context) error {
	convs, err := s.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	s.mu.Lock()
	s.conversations = slices.Clone(convs)
	s.mu.Unlock()
	return nil
}

// SelectConversation loads a conversation with its messages and makes it
// active. On failure the active conversation is cleared and the error wraps
// ErrConversationUnavailable.
func (s *Store) SelectConversation(ctx context.Context, id string) error {
	conv, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.active = nil
		s.messages = nil
		s.mu.Unlock()
		s.logger.Warn("conversation unavailable", "conversation_id", id, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrConversationUnavailable, id, err)
	}

	active := conv.Conversation
	msgs := models.CloneMessages(conv.Messages)
	if msgs == nil {
		msgs = []models.Message{}
	}

	s.mu.Lock()
	s.active = &active
	s.messages = msgs
	s.conversations = upsert(s.conversations, active)
	s.mu.Unlock()
	return nil
}

// CreateNewConversation persists a conversation, makes it active with no
// messages and puts it first in the roster.
func (s *Store) CreateNewConversation(ctx context.Context, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultConversationTitle
	}

	conv, err := s.backend.CreateConversation(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	active := *conv
	s.mu.Lock()
	s.active = &active
	s.messages = []models.Message{}
	next := make([]models.Conversation, 0, len(s.conversations)+1)
	next = append(next, active)
	for _, c := range s.conversations {
		if c.ID != active.ID {
			next = append(next, c)
		}
	}
	s.conversations = next
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation_id", active.ID, "title", active.Title)
	out := active
	return &out, nil
}

// RenameConversation changes a title on the server and in memory.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("rename conversation: title is empty")
	}

	conv, err := s.backend.UpdateConversation(ctx, id, title)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	updated := *conv
	if updated.ID == "" {
		updated.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		if c.ID == id {
			c.Title = title
			if !updated.UpdatedAt.IsZero() {
				c.UpdatedAt = updated.UpdatedAt
			}
		}
		next[i] = c
	}
	s.conversations = next
	if s.active != nil && s.active.ID == id {
		active := *s.active
		active.Title = title
		s.active = &active
	}
	return nil
}

// RemoveConversation deletes a conversation. If it was active, the active
// conversation and its messages are cleared.
func (s *Store) RemoveConversation(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("remove conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = slices.DeleteFunc(slices.Clone(s.conversations), func(c models.Conversation) bool {
		return c.ID == id
	})
	if s.active != nil && s.active.ID == id {
		s.active = nil
		s.messages = nil
	}
	return nil
}

// RemoveMessage deletes a persisted message and drops it from the active list.
func (s *Store) RemoveMessage(ctx context.Context, id string) error {
	if err := s.backend.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("remove message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = slices.DeleteFunc(slices.Clone(s.messages), func(m models.Message) bool {
		return m.ID == id
	})
	return nil
}

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := StoreState{
		Conversations: slices.Clone(s.conversations),
		Messages:      models.CloneMessages(s.messages),
	}
	if s.active != nil {
		active := *s.active
		st.Active = &active
	}
	return st
}

// ActiveID returns the id of the active conversation, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

// Reset drops all state, e.g. when the session ends.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	s.active = nil
	s.messages = nil
}

// appendMessage adds m to the active conversation. It is a no-op if another
// conversation became active in the meantime.
func (s *Store) appendMessage(conversationID string, m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != conversationID {
		return false
	}

	next := make([]models.Message, 0, len(s.messages)+1)
	next = append(next, s.messages...)
	s.messages = append(next, m.Clone())

	active := *s.active
	active.MessagesCount++
	at := m.CreatedAt
	active.LastMessageAt = &at
	active.UpdatedAt = at
	s.active = &active
	s.conversations = upsert(s.conversations, active)
	return true
}

// removeMessage drops the message whose client key or id equals key.
func (s *Store) removeMessage(conversationID, key string) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != conversationID {
		return false
	}

	idx := slices.IndexFunc(s.messages, func(m models.Message) bool {
		return m.ClientKey == key || m.ID == key
	})
	if idx < 0 {
		return false
	}
	s.messages = slices.Delete(slices.Clone(s.messages), idx, idx+1)

	active := *s.active
	if active.MessagesCount > 0 {
		active.MessagesCount--
	}
	s.active = &active
	s.conversations = upsert(s.conversations, active)
	return true
}

// promoteMessage commits a provisional message in place, taking the server
// id when one is known.
func (s *Store) promoteMessage(conversationID, clientKey, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != conversationID {
		return false
	}

	idx := slices.IndexFunc(s.messages, func(m models.Message) bool { return m.ClientKey == clientKey })
	if idx < 0 {
		return false
	}
	next := slices.Clone(s.messages)
	m := next[idx].Clone()
	m.Pending = false
	if serverID != "" {
		m.ID = serverID
	}
	next[idx] = m
	s.messages = next
	return true
}

// upsert returns a copy of convs with c replaced, or prepended if absent.
func upsert(convs []models.Conversation, c models.Conversation) []models.Conversation {
	idx := slices.IndexFunc(convs, func(x models.Conversation) bool { return x.ID == c.ID })
	if idx < 0 {
		return append([]models.Conversation{c}, convs...)
	}
	next := slices.Clone(convs)
	next[idx] = c
	return next
}

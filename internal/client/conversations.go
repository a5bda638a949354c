package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/propchat/internal/models"
)

// ConversationPage is the paginated roster shape.
type ConversationPage struct {
	Conversations []models.Conversation `json:"conversations"`
	Total         int                   `json:"total"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
	HasMore       bool                  `json:"has_more"`
}

// conversationList accepts either a bare array or a ConversationPage.
type conversationList []models.Conversation

func (l *conversationList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, (*[]models.Conversation)(l))
	}
	var page ConversationPage
	if err := json.Unmarshal(b, &page); err != nil {
		return err
	}
	*l = page.Conversations
	return nil
}

// CreateConversation creates a conversation in the configured organization.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	body := map[string]any{
		"title":           title,
		"organization_id": c.organizationID,
	}

	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, body, &conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the organization's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	query := url.Values{}
	if c.organizationID != "" {
		query.Set("organization_id", c.organizationID)
	}

	var list conversationList
	if err := c.do(ctx, http.MethodGet, "/conversations", query, nil, &list); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if list == nil {
		return []models.Conversation{}, nil
	}
	return list, nil
}

// GetConversation fetches a conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	var conv models.ConversationWithMessages
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, nil, &conv); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// UpdateConversation renames a conversation.
func (c *Client) UpdateConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	body := map[string]any{"title": title}

	var conv models.Conversation
	if err := c.do(ctx, http.MethodPatch, "/conversations/"+url.PathEscape(id), nil, body, &conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// DeleteMessage deletes a single message.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
	"github.com/raphaelgruber/propchat/internal/stream"
)

// SendMessage sends a chat request and waits for the full answer.
func (c *Client) SendMessage(ctx context.Context, req rag.ChatRequest) (*models.ChatResponse, error) {
	req.Stream = false

	var resp models.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/send", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &resp, nil
}

// Stream opens POST /chat/stream. Failures to connect match stream.ErrConnect.
func (c *Client) Stream(ctx context.Context, req rag.ChatRequest) (*stream.Stream, error) {
	req.Stream = true

	opts := []stream.Option{
		stream.WithLogger(c.logger),
		stream.WithIdleTimeout(c.idleTimeout),
	}
	if c.token != "" {
		opts = append(opts, stream.WithHeader("Authorization", "Bearer "+c.token))
	}

	s, err := stream.Open(ctx, c.streamClient, c.url("/chat/stream", nil), req, opts...)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return s, nil
}

// Suggestions returns up to count prompt suggestions. When the endpoint is
// unavailable the built-in list is returned together with the error.
func (c *Client) Suggestions(ctx context.Context, count int) ([]models.PromptSuggestion, error) {
	query := url.Values{}
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}

	var out []models.PromptSuggestion
	if err := c.do(ctx, http.MethodGet, "/chat/suggestions", query, nil, &out); err != nil {
		return limit(models.DefaultSuggestions(), count), fmt.Errorf("get suggestions: %w", err)
	}
	return out, nil
}

func limit(s []models.PromptSuggestion, n int) []models.PromptSuggestion {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// ErrMissingOrganization is returned by calls that need an organization id.
var ErrMissingOrganization = errors.New("organization id is not configured")

// ProcessDocument starts OCR and lease extraction for a document.
func (c *Client) ProcessDocument(ctx context.Context, documentID string, force bool) (*models.DocumentProcessing, error) {
	if c.organizationID == "" {
		return nil, fmt.Errorf("process document: %w", ErrMissingOrganization)
	}
	body := models.ProcessingRequest{
		DocumentID:     documentID,
		OrganizationID: c.organizationID,
		ForceReprocess: force,
	}
	if err := rag.Validator().Struct(body); err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}

	var p models.DocumentProcessing
	if err := c.do(ctx, http.MethodPost, "/processing/process", nil, body, &p); err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}
	return &p, nil
}

// GetProcessing fetches the current state of a processing run.
func (c *Client) GetProcessing(ctx context.Context, id string) (*models.DocumentProcessing, error) {
	var p models.DocumentProcessing
	if err := c.do(ctx, http.MethodGet, "/processing/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("get processing: %w", err)
	}
	return &p, nil
}

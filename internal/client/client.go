// Package client provides a REST and SSE client for the property chat backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/propchat/internal/metrics"
)

// DefaultBaseURL is used when Config.BaseURL is empty.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// Config configures a Client.
type Config struct {
	BaseURL        string
	Token          string
	OrganizationID string

	// Timeout applies to plain REST calls. Streams are never cut by it.
	Timeout time.Duration

	// StreamIdleTimeout fails a stream that stays silent this long. Zero disables it.
	StreamIdleTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Collector
}

// Client talks to the chat backend.
type Client struct {
	baseURL        string
	token          string
	organizationID string
	idleTimeout    time.Duration

	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// New creates a new client.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	streamClient := &http.Client{
		Transport:     httpClient.Transport,
		CheckRedirect: httpClient.CheckRedirect,
		Jar:           httpClient.Jar,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        base,
		token:          cfg.Token,
		organizationID: cfg.OrganizationID,
		idleTimeout:    cfg.StreamIdleTimeout,
		httpClient:     httpClient,
		streamClient:   streamClient,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

// OrganizationID returns the organization roster calls are scoped to.
func (c *Client) OrganizationID() string { return c.organizationID }

// Metrics returns the collector the client records into, possibly nil.
func (c *Client) Metrics() *metrics.Collector { return c.metrics }

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends a JSON request and decodes a JSON response into result.
// A nil result discards the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req.Header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(start, err)
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(start, err)
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, respBody)
		c.record(start, apiErr)
		return apiErr
	}
	c.record(start, nil)

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) record(start time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	c.metrics.RecordOutcome(metrics.OpAPIRequest, time.Since(start), outcome)
}

// Package botapi contains a minimal client for the hosted bot API (the Message
// Store): chat relay, retriever content sync, and account lifecycle calls. All
// tenant-scoped calls attach the profile uuid as the account-profile header.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrNoContent signals the upstream 204 "no new messages" response.
var ErrNoContent = errors.New("no new content")

// Message is a single conversation entry as returned by the bot API.
// ID is zero for entries the store has not assigned an id to.
type Message struct {
	ID        int64  `json:"id,omitempty"`
	Content   string `json:"content"`
	Direction string `json:"direction"` // inbound | outbound
}

// ChatRequest is the upstream chat call body.
type ChatRequest struct {
	FromContact   string `json:"from_contact"`
	Message       string `json:"message"`
	Nowait        string `json:"nowait"` // "1" or "0"
	LastMessageID int64  `json:"last_message_id"`
	IncludeSent   bool   `json:"include_sent"`
}

// ChatResponse is the upstream chat call result.
type ChatResponse struct {
	Status   string    `json:"status"`
	Messages []Message `json:"messages"`
}

// SyncRecord is one retriever document: a JSON-encoded content string plus typing metadata.
type SyncRecord struct {
	Content  string       `json:"content"`
	Metadata SyncMetadata `json:"metadata"`
}

type SyncMetadata struct {
	ContentType string `json:"content_type"` // product | post
}

// Client calls the hosted bot API for a single tenant.
type Client struct {
	Host        string // e.g. https://api.tekflox.com, no trailing slash
	Profile     string // tenant profile uuid
	HTTPClient  *http.Client
	ChatTimeout time.Duration
	SyncTimeout time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) chatTimeout() time.Duration {
	if c.ChatTimeout > 0 {
		return c.ChatTimeout
	}
	return 20 * time.Second
}

func (c *Client) syncTimeout() time.Duration {
	if c.SyncTimeout > 0 {
		return c.SyncTimeout
	}
	return 60 * time.Second
}

// Chat forwards one visitor message (or an empty poll) to the conversation
// endpoint. Returns ErrNoContent on the upstream idle signal; any transport
// failure or malformed payload is returned as an error.
func (c *Client) Chat(ctx context.Context, creq ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout())
	defer cancel()

	body, err := json.Marshal(creq)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/bot/chat/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("account-profile", c.Profile)

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoContent
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request: upstream status %d", resp.StatusCode)
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &out, nil
}

// SyncContent pushes the full content snapshot to the retriever in one batch.
func (c *Client) SyncContent(ctx context.Context, records []SyncRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.syncTimeout())
	defer cancel()

	body, err := json.Marshal(map[string]any{"data": records})
	if err != nil {
		return fmt.Errorf("encode sync batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/retriever/sync/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("account-profile", c.Profile)

	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("sync request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync request: upstream status %d", resp.StatusCode)
	}
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

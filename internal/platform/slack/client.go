// Package slack is the Web API client used to route markets through human
// review.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

const apiBase = "https://slack.com/api"

// ClientConfig holds the Web API client parameters.
type ClientConfig struct {
	Token   string
	Channel string
	BaseURL string // overridable for tests
	Timeout time.Duration
}

// Client implements domain.Messenger against the Slack Web API. Message ids
// are Slack timestamps, scoped to the configured channel.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Slack Web API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = apiBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.With(slog.String("component", "slack")),
	}
}

// apiResponse is the common envelope of every Web API call.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`

	Message struct {
		Reactions []struct {
			Name  string   `json:"name"`
			Users []string `json:"users"`
		} `json:"reactions"`
	} `json:"message"`
}

// PostApproval posts a pending market for initial review.
func (c *Client) PostApproval(ctx context.Context, pm domain.PendingMarket) (string, error) {
	text, blocks := approvalBlocks(pm)
	return c.post(ctx, text, blocks)
}

// PostDeployment posts an approved market for final pre-deployment review.
func (c *Client) PostDeployment(ctx context.Context, m domain.Market) (string, error) {
	text, blocks := deploymentBlocks(m)
	return c.post(ctx, text, blocks)
}

func (c *Client) post(ctx context.Context, text string, blocks []block) (string, error) {
	payload := map[string]any{
		"channel": c.cfg.Channel,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}

	resp, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return resp.TS, nil
}

// Reactions returns the reaction name -> user ids map for a posted message.
func (c *Client) Reactions(ctx context.Context, msgID string) (domain.ReactionSet, error) {
	params := url.Values{}
	params.Set("channel", c.cfg.Channel)
	params.Set("timestamp", msgID)
	params.Set("full", "true")

	resp, err := c.get(ctx, "reactions.get", params)
	if err != nil {
		return nil, fmt.Errorf("slack: get reactions for %s: %w", msgID, err)
	}

	set := make(domain.ReactionSet, len(resp.Message.Reactions))
	for _, r := range resp.Message.Reactions {
		set[r.Name] = r.Users
	}
	return set, nil
}

// React adds a reaction to a message. Reacting twice with the same name is
// reported as success.
func (c *Client) React(ctx context.Context, msgID, name string) error {
	_, err := c.call(ctx, "reactions.add", map[string]any{
		"channel":   c.cfg.Channel,
		"timestamp": msgID,
		"name":      name,
	})
	if err != nil && strings.Contains(err.Error(), "already_reacted") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("slack: add reaction: %w", err)
	}
	return nil
}

// Delete removes a posted message, used when cleaning up stale review posts.
func (c *Client) Delete(ctx context.Context, msgID string) error {
	_, err := c.call(ctx, "chat.delete", map[string]any{
		"channel": c.cfg.Channel,
		"ts":      msgID,
	})
	if err != nil {
		return fmt.Errorf("slack: delete message %s: %w", msgID, err)
	}
	return nil
}

// call sends a JSON POST to a Web API method.
func (c *Client) call(ctx context.Context, method string, payload map[string]any) (*apiResponse, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+method, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	return c.do(req)
}

// get sends a form-encoded GET to a Web API method.
func (c *Client) get(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !ar.OK {
		return nil, fmt.Errorf("api error: %s", ar.Error)
	}
	return &ar, nil
}

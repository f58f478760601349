// Package openai is the chat-completions client used for batch market
// categorization.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/categorize"
	"github.com/alanyoungcy/apepipe/internal/domain"
)

const systemPrompt = `You are an expert at categorizing prediction markets.

Categorize each market into exactly one of these categories:
politics, crypto, sports, business, culture, news, tech.

Respond with a JSON object of the form
{"results": [{"id": "...", "category": "...", "confidence": 0.0}]}
with one entry per input market. confidence is your confidence in the
categorization, between 0.0 and 1.0. Output only valid JSON.`

// ClientConfig holds the chat-completions client parameters.
type ClientConfig struct {
	ApiKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the chat-completions endpoint. It implements
// categorize.LLM.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a categorization client. Model and BaseURL fall back to
// gpt-4o-mini and the public API root.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CategorizeBatch sends all items in one request. Items missing from the
// parsed result are simply absent from the returned map; the caller decides
// the fallback.
func (c *Client) CategorizeBatch(ctx context.Context, items []domain.CategorizeItem) (map[string]categorize.Scored, error) {
	if c.cfg.ApiKey == "" {
		return nil, fmt.Errorf("openai: %w: no api key configured", domain.ErrUnauthorized)
	}

	payload, err := json.Marshal(itemsPayload(items))
	if err != nil {
		return nil, fmt.Errorf("openai: encode items: %w", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Categorize the following prediction markets:\n\n" + string(payload)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    0.3,
		MaxTokens:      4000,
	}

	content, err := c.complete(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return parseCategories(content, ids), nil
}

func itemsPayload(items []domain.CategorizeItem) []map[string]string {
	out := make([]map[string]string, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]string{
			"id":          it.ID,
			"question":    it.Question,
			"description": it.Description,
		})
	}
	return out
}

func (c *Client) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ApiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, body)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("openai: api error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return cr.Choices[0].Message.Content, nil
}

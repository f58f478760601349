// Package polymarket is the REST client for the Polymarket Gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// ClientConfig holds the Gamma client parameters.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	ActiveOnly bool
}

// GammaClient fetches market listings from the Gamma API.
type GammaClient struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// cfg.BaseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(cfg ClientConfig) *GammaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GammaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchListings returns up to limit current market listings. When the client
// is configured ActiveOnly, closed and archived markets are excluded at the
// API level as well as re-checked locally downstream.
func (g *GammaClient) FetchListings(ctx context.Context, limit int) ([]domain.SourceListing, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if g.cfg.ActiveOnly {
		params.Set("active", "true")
		params.Set("closed", "false")
		params.Set("archived", "false")
	}

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: fetch listings: %w", err)
	}

	// Decode twice: once into raw messages so each listing keeps its original
	// payload, once into the typed DTO.
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode listings: %w", err)
	}

	listings := make([]domain.SourceListing, 0, len(raws))
	for _, raw := range raws {
		var m APIMarket
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode listing: %w", err)
		}
		listings = append(listings, m.ToSourceListing(raw))
	}
	return listings, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps HTTP errors onto domain sentinels where they exist.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

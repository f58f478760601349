package domain

import (
	"context"
	"time"
)

// ReactionSet maps a reaction name to the user ids who added it.
type ReactionSet map[string][]string

// Messenger posts approval requests to the review channel and reads back
// reactions. Message ids are channel-scoped timestamps.
type Messenger interface {
	PostApproval(ctx context.Context, pm PendingMarket) (msgID string, err error)
	PostDeployment(ctx context.Context, m Market) (msgID string, err error)
	Reactions(ctx context.Context, msgID string) (ReactionSet, error)
	React(ctx context.Context, msgID, name string) error
	Delete(ctx context.Context, msgID string) error
}

// CategorizeItem is one market submitted for categorization.
type CategorizeItem struct {
	ID          string
	Question    string
	Description string
}

// CategoryResult is one categorization outcome. NeedsManual is set when the
// classifier could not produce a confident answer and a human should verify.
type CategoryResult struct {
	ID          string
	Category    string
	SubCategory string
	Confidence  float64
	NeedsManual bool
}

// Categorizer assigns a category to each item. Implementations must return
// exactly one result per input item, in order, and must not fail the whole
// batch when a single item cannot be classified.
type Categorizer interface {
	Categorize(ctx context.Context, items []CategorizeItem) ([]CategoryResult, error)
}

// DeployReceipt is the tri-state result of a deployment attempt: both ids set
// means confirmed, tx-only means submitted but unresolved, neither means the
// submission itself failed.
type DeployReceipt struct {
	MarketID string
	TxHash   string
}

// Deployer submits markets to the prediction market contract.
type Deployer interface {
	Deploy(ctx context.Context, m Market) (DeployReceipt, error)
	ResolveMarketID(ctx context.Context, txHash string) (string, error)
}

// ListingSource fetches current market listings from the upstream API.
type ListingSource interface {
	FetchListings(ctx context.Context, limit int) ([]SourceListing, error)
}

// ProcessedSet is the fast-path dedup cache backed by Redis; the Postgres
// ProcessedMarketStore remains the source of truth.
type ProcessedSet interface {
	Add(ctx context.Context, keys ...string) error
	Contains(ctx context.Context, key string) (bool, error)
	ContainsBatch(ctx context.Context, keys []string) (map[string]bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// MarketCache is a read-through cache for deployed markets in front of the
// MarketStore.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
}

// RateLimiter throttles calls to upstream APIs.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventChannel is the pub/sub channel carrying pipeline lifecycle events and
// EventStream is the durable stream holding their history.
const (
	EventChannel = "apepipe:events"
	EventStream  = "apepipe:events:stream"
)

// Event is one pipeline lifecycle event, serialized as JSON on the bus.
type Event struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id,omitempty"`
	PolyID   string    `json:"poly_id,omitempty"`
	RunID    string    `json:"run_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// SignalBus provides pub/sub and durable streams for pipeline events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

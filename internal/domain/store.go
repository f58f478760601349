package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PendingMarketStore persists markets awaiting the initial approval decision.
type PendingMarketStore interface {
	Upsert(ctx context.Context, pm PendingMarket) error
	GetByPolyID(ctx context.Context, polyID string) (PendingMarket, error)
	ListUnposted(ctx context.Context, limit int) ([]PendingMarket, error)
	ListPosted(ctx context.Context) ([]PendingMarket, error)
	MarkPosted(ctx context.Context, polyID, slackMsgID string) error
	Delete(ctx context.Context, polyID string) error
	Count(ctx context.Context) (int64, error)
}

// MarketStore persists approved markets through deployment.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByPolyID(ctx context.Context, polyID string) (Market, error)
	UpdateStatus(ctx context.Context, id string, status MarketStatus) error
	SetSlackMessage(ctx context.Context, id, slackMsgID string) error
	SetDeployment(ctx context.Context, id, apechainMarketID, txHash string, status MarketStatus) error
	SetFailure(ctx context.Context, id, txHash, reason string) error
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	CountByStatus(ctx context.Context) (map[MarketStatus]int64, error)
}

// ApprovalLogStore persists the append-only decision audit trail.
// Record returns ErrAlreadyDecided when a decision already exists for the
// (poly_id, stage) pair.
type ApprovalLogStore interface {
	Record(ctx context.Context, entry ApprovalLog) error
	GetByPolyID(ctx context.Context, polyID string, stage ApprovalStage) (ApprovalLog, error)
	List(ctx context.Context, opts ListOpts) ([]ApprovalLog, error)
}

// ProcessedMarketStore tracks source listing keys that have already been
// through the pipeline so they are never re-ingested.
type ProcessedMarketStore interface {
	MarkProcessed(ctx context.Context, key, outcome string) error
	IsProcessed(ctx context.Context, key string) (bool, error)
	FilterProcessed(ctx context.Context, keys []string) (map[string]bool, error)
	Count(ctx context.Context) (int64, error)
}

// PipelineRunStore persists execution history.
type PipelineRunStore interface {
	Start(ctx context.Context, run PipelineRun) error
	Finish(ctx context.Context, run PipelineRun) error
	GetByID(ctx context.Context, id string) (PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]PipelineRun, error)
}

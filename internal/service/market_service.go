package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// MarketService is the read side used by the HTTP API: markets, pending
// markets, decision history and run history.
type MarketService struct {
	markets   domain.MarketStore
	pending   domain.PendingMarketStore
	decisions domain.ApprovalLogStore
	runs      domain.PipelineRunStore
	cache     domain.MarketCache // may be nil
	logger    *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	pending domain.PendingMarketStore,
	decisions domain.ApprovalLogStore,
	runs domain.PipelineRunStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		pending:   pending,
		decisions: decisions,
		runs:      runs,
		cache:     cache,
		logger:    logger.With(slog.String("component", "markets")),
	}
}

// GetMarket retrieves a market by id, checking the cache first and falling
// back to the store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: get %q: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets, optionally filtered to one status.
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	if status != "" {
		markets, err := s.markets.ListByStatus(ctx, status, opts)
		if err != nil {
			return nil, fmt.Errorf("markets: list by status %s: %w", status, err)
		}
		return markets, nil
	}
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("markets: list: %w", err)
	}
	return markets, nil
}

// ListPending returns pending markets awaiting or undergoing review.
func (s *MarketService) ListPending(ctx context.Context) ([]domain.PendingMarket, error) {
	posted, err := s.pending.ListPosted(ctx)
	if err != nil {
		return nil, fmt.Errorf("markets: list posted pending: %w", err)
	}
	unposted, err := s.pending.ListUnposted(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("markets: list unposted pending: %w", err)
	}
	return append(posted, unposted...), nil
}

// ListDecisions returns the decision audit trail, newest first.
func (s *MarketService) ListDecisions(ctx context.Context, opts domain.ListOpts) ([]domain.ApprovalLog, error) {
	entries, err := s.decisions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("markets: list decisions: %w", err)
	}
	return entries, nil
}

// RecentRuns returns the most recent pipeline runs.
func (s *MarketService) RecentRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	runs, err := s.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("markets: list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one pipeline run by id.
func (s *MarketService) GetRun(ctx context.Context, id string) (domain.PipelineRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("markets: get run %q: %w", id, err)
	}
	return run, nil
}

// Status summarizes the pipeline state for the status endpoint.
type Status struct {
	PendingCount int64                         `json:"pending_count"`
	ByStatus     map[domain.MarketStatus]int64 `json:"markets_by_status"`
	LastRun      *domain.PipelineRun           `json:"last_run,omitempty"`
}

// GetStatus aggregates counts and the latest run.
func (s *MarketService) GetStatus(ctx context.Context) (Status, error) {
	pendingCount, err := s.pending.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("markets: count pending: %w", err)
	}
	byStatus, err := s.markets.CountByStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("markets: count by status: %w", err)
	}

	st := Status{PendingCount: pendingCount, ByStatus: byStatus}

	runs, err := s.runs.ListRecent(ctx, 1)
	if err != nil {
		return Status{}, fmt.Errorf("markets: last run: %w", err)
	}
	if len(runs) > 0 {
		st.LastRun = &runs[0]
	}
	return st, nil
}

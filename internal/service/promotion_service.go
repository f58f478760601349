// Package service holds the pipeline's business operations: promotion of
// approved markets, review decision handling and on-chain deployment.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// PromotionService turns an approved pending market into a deployable market
// row. Promotion is idempotent: promoting the same source market twice
// returns the existing row.
type PromotionService struct {
	pending domain.PendingMarketStore
	markets domain.MarketStore
	logger  *slog.Logger
}

// NewPromotionService creates a PromotionService.
func NewPromotionService(
	pending domain.PendingMarketStore,
	markets domain.MarketStore,
	logger *slog.Logger,
) *PromotionService {
	return &PromotionService{
		pending: pending,
		markets: markets,
		logger:  logger.With(slog.String("component", "promotion")),
	}
}

// Promote creates the market row for an approved pending market and removes
// the staging row. When a market already exists for the same source id, the
// existing row is returned and the staging row is still cleaned up.
func (s *PromotionService) Promote(ctx context.Context, pm domain.PendingMarket) (domain.Market, error) {
	existing, err := s.markets.GetByPolyID(ctx, pm.PolyID)
	if err == nil {
		s.logger.InfoContext(ctx, "already promoted",
			slog.String("poly_id", pm.PolyID),
			slog.String("market_id", existing.ID),
		)
		return existing, s.cleanup(ctx, pm.PolyID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, fmt.Errorf("promotion: lookup %s: %w", pm.PolyID, err)
	}

	m := domain.Market{
		ID:               uuid.New().String(),
		Question:         pm.Question,
		Type:             marketType(pm),
		Category:         pm.Category,
		Options:          pm.Options,
		Expiry:           pm.Expiry,
		OriginalMarketID: pm.PolyID,
		Status:           domain.StatusNew,
		OptionImages:     pm.OptionImages,
		EventID:          pm.EventID,
		EventName:        pm.EventName,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with another run; the winner's row is canonical.
			existing, getErr := s.markets.GetByPolyID(ctx, pm.PolyID)
			if getErr != nil {
				return domain.Market{}, fmt.Errorf("promotion: refetch %s: %w", pm.PolyID, getErr)
			}
			return existing, s.cleanup(ctx, pm.PolyID)
		}
		return domain.Market{}, fmt.Errorf("promotion: create market for %s: %w", pm.PolyID, err)
	}

	s.logger.InfoContext(ctx, "market promoted",
		slog.String("poly_id", pm.PolyID),
		slog.String("market_id", m.ID),
		slog.String("type", m.Type),
	)

	return m, s.cleanup(ctx, pm.PolyID)
}

func (s *PromotionService) cleanup(ctx context.Context, polyID string) error {
	if err := s.pending.Delete(ctx, polyID); err != nil {
		return fmt.Errorf("promotion: delete pending %s: %w", polyID, err)
	}
	return nil
}

// marketType distinguishes plain yes/no markets from synthesized multi-option
// event markets.
func marketType(pm domain.PendingMarket) string {
	if pm.IsGrouped() || len(pm.Options) > 2 {
		return "multiple"
	}
	return "binary"
}

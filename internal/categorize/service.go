package categorize

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// Scored is one raw classification from the LLM.
type Scored struct {
	Category   string
	Confidence float64
}

// LLM is the batched classification call. Implementations return a map keyed
// by item id; absent items are handled by the caller.
type LLM interface {
	CategorizeBatch(ctx context.Context, items []domain.CategorizeItem) (map[string]Scored, error)
}

// Service implements domain.Categorizer: a batched LLM call with per-item
// keyword fallback. A nil LLM degrades to keyword-only operation.
type Service struct {
	llm       LLM
	threshold float64
	batchSize int
	log       *slog.Logger
}

func NewService(llm LLM, threshold float64, batchSize int, logger *slog.Logger) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Service{
		llm:       llm,
		threshold: threshold,
		batchSize: batchSize,
		log:       logger.With(slog.String("component", "categorizer")),
	}
}

// Categorize returns exactly one result per input item, in input order. Items
// the LLM misses, classifies outside the vocabulary, or scores below the
// confidence threshold get the keyword category and are flagged for manual
// review. An unavailable LLM degrades the whole batch to keywords; it never
// drops items and never returns an error for classification failures.
func (s *Service) Categorize(ctx context.Context, items []domain.CategorizeItem) ([]domain.CategoryResult, error) {
	out := make([]domain.CategoryResult, 0, len(items))
	for start := 0; start < len(items); start += s.batchSize {
		end := start + s.batchSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, s.batch(ctx, items[start:end])...)
	}
	return out, nil
}

func (s *Service) batch(ctx context.Context, items []domain.CategorizeItem) []domain.CategoryResult {
	var scored map[string]Scored
	if s.llm != nil {
		var err error
		scored, err = s.llm.CategorizeBatch(ctx, items)
		if err != nil {
			s.log.Warn("llm batch failed, falling back to keywords",
				slog.Int("items", len(items)),
				slog.String("error", err.Error()))
			scored = nil
		}
	}

	results := make([]domain.CategoryResult, 0, len(items))
	for _, item := range items {
		sc, ok := scored[item.ID]
		switch {
		case !ok, !Valid(sc.Category):
			results = append(results, s.fallback(item))
		case sc.Confidence < s.threshold:
			r := s.fallback(item)
			r.Confidence = sc.Confidence
			results = append(results, r)
		default:
			results = append(results, domain.CategoryResult{
				ID:         item.ID,
				Category:   sc.Category,
				Confidence: sc.Confidence,
			})
		}
	}
	return results
}

func (s *Service) fallback(item domain.CategorizeItem) domain.CategoryResult {
	return domain.CategoryResult{
		ID:          item.ID,
		Category:    Keyword(item.Question),
		Confidence:  0.5,
		NeedsManual: true,
	}
}

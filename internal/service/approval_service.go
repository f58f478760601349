package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/apepipe/internal/approval"
	"github.com/alanyoungcy/apepipe/internal/domain"
)

// CheckStats counts the decisions applied by one review sweep.
type CheckStats struct {
	Approved int
	Rejected int
	TimedOut int
	Promoted int
}

// ApprovalService posts markets for human review and applies the resulting
// decisions. Both review stages run through it: the initial screen of pending
// markets and the final pre-deployment check.
type ApprovalService struct {
	initial    approval.Evaluator
	deployment approval.Evaluator
	messenger  domain.Messenger
	decisions  domain.ApprovalLogStore
	pending    domain.PendingMarketStore
	markets    domain.MarketStore
	processed  domain.ProcessedMarketStore
	dedup      domain.ProcessedSet // may be nil when Redis is absent
	promoter   *PromotionService
	now        func() time.Time
	logger     *slog.Logger
}

// ApprovalConfig wires an ApprovalService.
type ApprovalConfig struct {
	BotUserID        string
	InitialWindow    time.Duration
	DeploymentWindow time.Duration
	Messenger        domain.Messenger
	Decisions        domain.ApprovalLogStore
	Pending          domain.PendingMarketStore
	Markets          domain.MarketStore
	Processed        domain.ProcessedMarketStore
	Dedup            domain.ProcessedSet
	Promoter         *PromotionService
}

// NewApprovalService creates an ApprovalService.
func NewApprovalService(cfg ApprovalConfig, logger *slog.Logger) *ApprovalService {
	if cfg.InitialWindow <= 0 {
		cfg.InitialWindow = domain.PendingApprovalWindow
	}
	if cfg.DeploymentWindow <= 0 {
		cfg.DeploymentWindow = domain.PendingApprovalWindow
	}
	return &ApprovalService{
		initial:    approval.Evaluator{BotUserID: cfg.BotUserID, Window: cfg.InitialWindow},
		deployment: approval.Evaluator{BotUserID: cfg.BotUserID, Window: cfg.DeploymentWindow},
		messenger:  cfg.Messenger,
		decisions:  cfg.Decisions,
		pending:    cfg.Pending,
		markets:    cfg.Markets,
		processed:  cfg.Processed,
		dedup:      cfg.Dedup,
		promoter:   cfg.Promoter,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "approval")),
	}
}

// PostPending posts unposted pending markets to the review channel, up to
// limit. A post failure for one market does not block the rest.
func (s *ApprovalService) PostPending(ctx context.Context, limit int) (int, error) {
	unposted, err := s.pending.ListUnposted(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("approval: list unposted: %w", err)
	}

	posted := 0
	for _, pm := range unposted {
		msgID, err := s.messenger.PostApproval(ctx, pm)
		if err != nil {
			s.logger.ErrorContext(ctx, "post approval failed",
				slog.String("poly_id", pm.PolyID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.pending.MarkPosted(ctx, pm.PolyID, msgID); err != nil {
			s.logger.ErrorContext(ctx, "mark posted failed",
				slog.String("poly_id", pm.PolyID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.seedReactions(ctx, msgID)
		posted++
	}
	return posted, nil
}

// CheckInitial sweeps every posted pending market, evaluates its reactions
// and applies the decision: approved markets are promoted, rejected and
// timed-out markets are retired with their source keys marked processed.
func (s *ApprovalService) CheckInitial(ctx context.Context) (CheckStats, error) {
	var stats CheckStats

	postedMarkets, err := s.pending.ListPosted(ctx)
	if err != nil {
		return stats, fmt.Errorf("approval: list posted: %w", err)
	}

	for _, pm := range postedMarkets {
		reactions, err := s.messenger.Reactions(ctx, pm.SlackMessageID)
		if err != nil {
			s.logger.ErrorContext(ctx, "read reactions failed",
				slog.String("poly_id", pm.PolyID),
				slog.String("message", pm.SlackMessageID),
				slog.String("error", err.Error()),
			)
			continue
		}

		decision := s.initial.Evaluate(reactions, pm.FetchedAt, s.now())
		if !decision.Outcome.Decided() {
			continue
		}

		if err := s.applyInitial(ctx, pm, decision, &stats); err != nil {
			s.logger.ErrorContext(ctx, "apply decision failed",
				slog.String("poly_id", pm.PolyID),
				slog.String("outcome", string(decision.Outcome)),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

func (s *ApprovalService) applyInitial(ctx context.Context, pm domain.PendingMarket, decision domain.Decision, stats *CheckStats) error {
	s.record(ctx, domain.ApprovalLog{
		PolyID:     pm.PolyID,
		Stage:      domain.StageInitial,
		SlackMsgID: pm.SlackMessageID,
		Reviewer:   decision.Reviewer,
		Decision:   decision.Outcome,
		Reason:     decisionReason(decision.Outcome),
	})

	switch decision.Outcome {
	case domain.OutcomeApproved:
		if _, err := s.promoter.Promote(ctx, pm); err != nil {
			return err
		}
		stats.Approved++
		stats.Promoted++
		return s.markProcessed(ctx, pm, "approved")

	case domain.OutcomeRejected:
		stats.Rejected++
		return s.retire(ctx, pm, "rejected")

	case domain.OutcomeTimeout:
		stats.TimedOut++
		return s.retire(ctx, pm, "timeout")
	}
	return nil
}

// PostDeployment posts freshly promoted markets for final pre-deployment
// review and moves them to pending_deployment.
func (s *ApprovalService) PostDeployment(ctx context.Context) (int, error) {
	fresh, err := s.markets.ListByStatus(ctx, domain.StatusNew, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("approval: list new markets: %w", err)
	}

	posted := 0
	for _, m := range fresh {
		msgID, err := s.messenger.PostDeployment(ctx, m)
		if err != nil {
			s.logger.ErrorContext(ctx, "post deployment review failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.markets.SetSlackMessage(ctx, m.ID, msgID); err != nil {
			s.logger.ErrorContext(ctx, "set review message failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.transition(ctx, m, domain.StatusPendingDeployment); err != nil {
			s.logger.ErrorContext(ctx, "transition failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.seedReactions(ctx, msgID)
		posted++
	}
	return posted, nil
}

// CheckDeployment sweeps markets awaiting final review. Approved markets move
// to deploying; rejections and timeouts are terminal.
func (s *ApprovalService) CheckDeployment(ctx context.Context) (CheckStats, error) {
	var stats CheckStats

	waiting, err := s.markets.ListByStatus(ctx, domain.StatusPendingDeployment, domain.ListOpts{})
	if err != nil {
		return stats, fmt.Errorf("approval: list pending deployment: %w", err)
	}

	for _, m := range waiting {
		if m.SlackMessageID == "" {
			s.logger.WarnContext(ctx, "pending deployment without review message",
				slog.String("market_id", m.ID),
			)
			continue
		}

		reactions, err := s.messenger.Reactions(ctx, m.SlackMessageID)
		if err != nil {
			s.logger.ErrorContext(ctx, "read reactions failed",
				slog.String("market_id", m.ID),
				slog.String("message", m.SlackMessageID),
				slog.String("error", err.Error()),
			)
			continue
		}

		decision := s.deployment.Evaluate(reactions, m.UpdatedAt, s.now())
		if !decision.Outcome.Decided() {
			continue
		}

		s.record(ctx, domain.ApprovalLog{
			PolyID:     m.OriginalMarketID,
			Stage:      domain.StageDeployment,
			SlackMsgID: m.SlackMessageID,
			Reviewer:   decision.Reviewer,
			Decision:   decision.Outcome,
			Reason:     decisionReason(decision.Outcome),
		})

		var next domain.MarketStatus
		switch decision.Outcome {
		case domain.OutcomeApproved:
			next = domain.StatusDeploying
			stats.Approved++
		case domain.OutcomeRejected:
			next = domain.StatusDeploymentRejected
			stats.Rejected++
		case domain.OutcomeTimeout:
			next = domain.StatusDeploymentTimeout
			stats.TimedOut++
		default:
			continue
		}

		if err := s.transition(ctx, m, next); err != nil {
			s.logger.ErrorContext(ctx, "transition failed",
				slog.String("market_id", m.ID),
				slog.String("next", string(next)),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

// seedReactions pre-adds the approve and reject markers so reviewers can
// one-click them. The evaluator filters the bot's own reactions, so seeding
// never counts as a vote. Failures only warn.
func (s *ApprovalService) seedReactions(ctx context.Context, msgID string) {
	for _, name := range []string{"white_check_mark", "x"} {
		if err := s.messenger.React(ctx, msgID, name); err != nil {
			s.logger.WarnContext(ctx, "seed reaction failed",
				slog.String("message", msgID),
				slog.String("reaction", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// record appends the audit row. A duplicate means another run already
// recorded this decision; the sweep still re-applies any unfinished cleanup.
func (s *ApprovalService) record(ctx context.Context, entry domain.ApprovalLog) {
	if err := s.decisions.Record(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrAlreadyDecided) {
			s.logger.DebugContext(ctx, "decision already recorded",
				slog.String("poly_id", entry.PolyID),
				slog.String("stage", string(entry.Stage)),
			)
			return
		}
		s.logger.ErrorContext(ctx, "record decision failed",
			slog.String("poly_id", entry.PolyID),
			slog.String("error", err.Error()),
		)
	}
}

// retire removes a pending market that will not be promoted and cleans up its
// review message so the channel only shows open items.
func (s *ApprovalService) retire(ctx context.Context, pm domain.PendingMarket, outcome string) error {
	if err := s.markProcessed(ctx, pm, outcome); err != nil {
		return err
	}
	if err := s.pending.Delete(ctx, pm.PolyID); err != nil {
		return fmt.Errorf("approval: delete pending %s: %w", pm.PolyID, err)
	}
	if pm.SlackMessageID != "" {
		if err := s.messenger.Delete(ctx, pm.SlackMessageID); err != nil {
			s.logger.WarnContext(ctx, "delete review message failed",
				slog.String("message", pm.SlackMessageID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// markProcessed records every source listing key behind pm in the durable
// dedup ledger and the Redis fast path.
func (s *ApprovalService) markProcessed(ctx context.Context, pm domain.PendingMarket, outcome string) error {
	keys := pm.OriginalMarketIDs
	if len(keys) == 0 {
		keys = []string{pm.PolyID}
	}
	for _, key := range keys {
		if err := s.processed.MarkProcessed(ctx, key, outcome); err != nil {
			return fmt.Errorf("approval: mark processed %s: %w", key, err)
		}
	}
	if s.dedup != nil {
		if err := s.dedup.Add(ctx, keys...); err != nil {
			s.logger.WarnContext(ctx, "dedup cache add failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *ApprovalService) transition(ctx context.Context, m domain.Market, next domain.MarketStatus) error {
	if err := m.Transition(next); err != nil {
		return fmt.Errorf("approval: %s -> %s: %w", m.Status, next, err)
	}
	if err := s.markets.UpdateStatus(ctx, m.ID, next); err != nil {
		return fmt.Errorf("approval: update status %s: %w", m.ID, err)
	}
	return nil
}

func decisionReason(outcome domain.DecisionOutcome) string {
	if outcome == domain.OutcomeTimeout {
		return "approval window elapsed"
	}
	return ""
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
	"github.com/alanyoungcy/apepipe/internal/notify"
)

// DeployStats counts the outcomes of one deployment sweep.
type DeployStats struct {
	Deployed  int
	Submitted int // tx sent, on-chain id not yet resolved
	Failed    int
}

// DeploymentService submits approved markets to the chain and tracks
// submitted transactions until their on-chain id resolves.
type DeploymentService struct {
	markets  domain.MarketStore
	deployer domain.Deployer
	cache    domain.MarketCache // may be nil
	bus      domain.SignalBus   // may be nil
	notifier *notify.Notifier   // may be nil
	logger   *slog.Logger
}

// NewDeploymentService creates a DeploymentService. Cache, bus and notifier
// are optional.
func NewDeploymentService(
	markets domain.MarketStore,
	deployer domain.Deployer,
	cache domain.MarketCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *DeploymentService {
	return &DeploymentService{
		markets:  markets,
		deployer: deployer,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "deployment")),
	}
}

// DeployApproved submits every market in deploying state that has no
// transaction yet. One failed submission does not block the rest.
func (s *DeploymentService) DeployApproved(ctx context.Context) (DeployStats, error) {
	var stats DeployStats

	queue, err := s.markets.ListByStatus(ctx, domain.StatusDeploying, domain.ListOpts{})
	if err != nil {
		return stats, fmt.Errorf("deployment: list deploying: %w", err)
	}

	for _, m := range queue {
		if m.BlockchainTx != "" {
			// Already submitted; TrackSubmitted owns it now.
			continue
		}

		receipt, err := s.deployer.Deploy(ctx, m)
		switch {
		case err != nil:
			stats.Failed++
			s.fail(ctx, m, err)

		case receipt.MarketID != "":
			stats.Deployed++
			s.confirm(ctx, m, receipt)

		default:
			stats.Submitted++
			if err := s.markets.SetDeployment(ctx, m.ID, "", receipt.TxHash, domain.StatusDeploying); err != nil {
				s.logger.ErrorContext(ctx, "record submission failed",
					slog.String("market_id", m.ID),
					slog.String("tx", receipt.TxHash),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.logger.InfoContext(ctx, "deployment submitted",
				slog.String("market_id", m.ID),
				slog.String("tx", receipt.TxHash),
			)
		}
	}
	return stats, nil
}

// TrackSubmitted resolves the on-chain id for markets whose transaction was
// sent in an earlier run. Receipts that are still unavailable are left for
// the next sweep.
func (s *DeploymentService) TrackSubmitted(ctx context.Context) (DeployStats, error) {
	var stats DeployStats

	queue, err := s.markets.ListByStatus(ctx, domain.StatusDeploying, domain.ListOpts{})
	if err != nil {
		return stats, fmt.Errorf("deployment: list deploying: %w", err)
	}

	for _, m := range queue {
		if m.BlockchainTx == "" {
			continue
		}

		marketID, err := s.deployer.ResolveMarketID(ctx, m.BlockchainTx)
		switch {
		case err == nil:
			stats.Deployed++
			s.confirm(ctx, m, domain.DeployReceipt{MarketID: marketID, TxHash: m.BlockchainTx})

		case errors.Is(err, domain.ErrNotFound):
			// Still mining.

		case errors.Is(err, domain.ErrDeployFailed):
			stats.Failed++
			s.fail(ctx, m, err)

		default:
			s.logger.ErrorContext(ctx, "resolve market id failed",
				slog.String("market_id", m.ID),
				slog.String("tx", m.BlockchainTx),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

// confirm records a successful deployment and fans the event out.
func (s *DeploymentService) confirm(ctx context.Context, m domain.Market, receipt domain.DeployReceipt) {
	if err := s.markets.SetDeployment(ctx, m.ID, receipt.MarketID, receipt.TxHash, domain.StatusDeployed); err != nil {
		s.logger.ErrorContext(ctx, "record deployment failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	m.ApechainMarketID = receipt.MarketID
	m.BlockchainTx = receipt.TxHash
	m.Status = domain.StatusDeployed

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, domain.Event{
		Type:     notify.EventDeployed,
		MarketID: m.ID,
		PolyID:   m.OriginalMarketID,
		Detail:   fmt.Sprintf("on-chain id %s tx %s", receipt.MarketID, receipt.TxHash),
	})
	s.send(ctx, notify.EventDeployed, "Market deployed",
		fmt.Sprintf("%s\nOn-chain id: %s\nTx: %s", m.Question, receipt.MarketID, receipt.TxHash))

	s.logger.InfoContext(ctx, "market deployed",
		slog.String("market_id", m.ID),
		slog.String("apechain_id", receipt.MarketID),
		slog.String("tx", receipt.TxHash),
	)
}

// fail records a terminal deployment failure with its cause and alerts the
// operators.
func (s *DeploymentService) fail(ctx context.Context, m domain.Market, cause error) {
	if err := s.markets.SetFailure(ctx, m.ID, m.BlockchainTx, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "record failure failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, domain.Event{
		Type:     notify.EventDeployFailed,
		MarketID: m.ID,
		PolyID:   m.OriginalMarketID,
		Detail:   cause.Error(),
	})
	s.send(ctx, notify.EventDeployFailed, "Market deployment failed",
		fmt.Sprintf("%s\n%v", m.Question, cause))

	s.logger.ErrorContext(ctx, "deployment failed",
		slog.String("market_id", m.ID),
		slog.String("error", cause.Error()),
	)
}

func (s *DeploymentService) publish(ctx context.Context, event domain.Event) {
	if s.bus == nil {
		return
	}
	event.At = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "append event failed",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DeploymentService) send(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/apepipe/internal/categorize"
	"github.com/alanyoungcy/apepipe/internal/crypto"
	"github.com/alanyoungcy/apepipe/internal/domain"
	"github.com/alanyoungcy/apepipe/internal/grouper"
	"github.com/alanyoungcy/apepipe/internal/pipeline"
	"github.com/alanyoungcy/apepipe/internal/platform/apechain"
	"github.com/alanyoungcy/apepipe/internal/platform/openai"
	"github.com/alanyoungcy/apepipe/internal/platform/polymarket"
	"github.com/alanyoungcy/apepipe/internal/platform/slack"
	"github.com/alanyoungcy/apepipe/internal/server"
	"github.com/alanyoungcy/apepipe/internal/server/handler"
	"github.com/alanyoungcy/apepipe/internal/server/ws"
	"github.com/alanyoungcy/apepipe/internal/service"
)

// PipelineMode runs the full ingestion loop on its configured interval plus
// the HTTP API when enabled. This is the normal long-running deployment.
func (a *App) PipelineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pipeline mode")

	pipe, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("pipeline mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pipe.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, pipe)
	}

	return g.Wait()
}

// OnceMode executes exactly one pipeline pass and exits. Useful for cron
// scheduling and for debugging a single run end to end.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting single-run mode")

	pipe, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	run, err := pipe.Run(ctx, "manual")
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}
	a.logger.InfoContext(ctx, "run complete",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)
	return nil
}

// ServeMode runs only the read API and WebSocket hub. No listings are fetched
// and nothing is deployed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// TrackMode resolves outstanding deployment transactions once and exits. It
// exists for operators recovering from a crash between submission and
// confirmation.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode")

	deployer, err := a.buildDeployer()
	if err != nil {
		return fmt.Errorf("track mode: %w", err)
	}
	deployments := service.NewDeploymentService(
		deps.Markets, deployer, deps.MarketCache, deps.SignalBus, deps.Notifier, a.logger,
	)

	stats, err := deployments.TrackSubmitted(ctx)
	if err != nil {
		return fmt.Errorf("track mode: %w", err)
	}
	a.logger.InfoContext(ctx, "tracking complete",
		slog.Int("confirmed", stats.Deployed),
		slog.Int("failed", stats.Failed),
	)
	return nil
}

// buildPipeline assembles the full stage chain from configuration: source,
// grouper, categorizer, review services, and the on-chain deployer.
func (a *App) buildPipeline(deps *Dependencies) (*pipeline.Pipeline, error) {
	deployer, err := a.buildDeployer()
	if err != nil {
		return nil, err
	}

	gamma := polymarket.NewGammaClient(polymarket.ClientConfig{
		BaseURL:    a.cfg.Polymarket.GammaHost,
		Timeout:    a.cfg.Polymarket.HTTPTimeout.Duration,
		ActiveOnly: a.cfg.Polymarket.ActiveOnly,
	})

	messenger := slack.NewClient(slack.ClientConfig{
		Token:   a.cfg.Slack.Token,
		Channel: a.cfg.Slack.Channel,
	}, a.logger)

	promoter := service.NewPromotionService(deps.Pending, deps.Markets, a.logger)
	approvals := service.NewApprovalService(service.ApprovalConfig{
		BotUserID:        a.cfg.Slack.BotUserID,
		InitialWindow:    a.cfg.Pipeline.ApprovalWindow.Duration,
		DeploymentWindow: a.cfg.Pipeline.DeploymentApprovalWindow.Duration,
		Messenger:        messenger,
		Decisions:        deps.Decisions,
		Pending:          deps.Pending,
		Markets:          deps.Markets,
		Processed:        deps.Processed,
		Dedup:            deps.Dedup,
		Promoter:         promoter,
	}, a.logger)

	deployments := service.NewDeploymentService(
		deps.Markets, deployer, deps.MarketCache, deps.SignalBus, deps.Notifier, a.logger,
	)

	pdeps := pipeline.Deps{
		Source:      gamma,
		Grouper:     grouper.New(a.logger),
		Categorizer: a.buildCategorizer(),
		Approvals:   approvals,
		Deployments: deployments,
		Pending:     deps.Pending,
		Processed:   deps.Processed,
		Dedup:       deps.Dedup,
		Runs:        deps.Runs,
		Locks:       deps.LockManager,
		Bus:         deps.SignalBus,
		Limiter:     deps.RateLimiter,
		Notifier:    deps.Notifier,
	}
	if deps.Archiver != nil {
		pdeps.Archiver = deps.Archiver
	}

	return pipeline.New(pipeline.Config{
		FetchLimit:     a.cfg.Polymarket.FetchLimit,
		PostBatchLimit: a.cfg.Pipeline.PostBatchLimit,
		RunInterval:    a.cfg.Pipeline.RunInterval.Duration,
		LockTTL:        a.cfg.Pipeline.LockTTL.Duration,
	}, pdeps, a.logger), nil
}

// buildCategorizer returns the LLM-backed categorizer, degraded to
// keyword-only classification when no API key is configured.
func (a *App) buildCategorizer() domain.Categorizer {
	var llm categorize.LLM
	if a.cfg.OpenAI.ApiKey != "" {
		llm = openai.NewClient(openai.ClientConfig{
			ApiKey:  a.cfg.OpenAI.ApiKey,
			Model:   a.cfg.OpenAI.Model,
			BaseURL: a.cfg.OpenAI.BaseURL,
		})
	} else {
		a.logger.Warn("openai api key not set, categorization falls back to keywords")
	}
	return categorize.NewService(llm, a.cfg.OpenAI.ConfidenceThreshold, a.cfg.OpenAI.BatchSize, a.logger)
}

// buildDeployer loads the wallet key and connects to the chain RPC.
func (a *App) buildDeployer() (domain.Deployer, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Apechain.PrivateKey,
		EncryptedKeyPath: a.cfg.Apechain.EncryptedKeyPath,
		KeyPassword:      a.cfg.Apechain.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load wallet key: %w", err)
	}

	return apechain.NewDeployer(apechain.DeployerConfig{
		RPCURL:          a.cfg.Apechain.RPCURL,
		ChainID:         a.cfg.Apechain.ChainID,
		ContractAddress: a.cfg.Apechain.ContractAddress,
		PrivateKeyHex:   key,
		GasLimit:        a.cfg.Apechain.GasLimit,
		ConfirmTimeout:  a.cfg.Apechain.ConfirmTimeout.Duration,
	}, a.logger)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. pipe is optional; when nil the trigger endpoint reports the
// pipeline as unavailable.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, pipe *pipeline.Pipeline) {
	marketSvc := service.NewMarketService(
		deps.Markets, deps.Pending, deps.Decisions, deps.Runs, deps.MarketCache, a.logger,
	)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(marketSvc, a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Pending:   handler.NewPendingHandler(marketSvc, a.logger),
		Decisions: handler.NewDecisionHandler(marketSvc, a.logger),
		Runs:      handler.NewRunHandler(marketSvc, a.logger),
		Events:    handler.NewEventHandler(deps.SignalBus, a.logger),
	}
	if deps.Archiver != nil {
		handlers.Snapshots = handler.NewSnapshotHandler(deps.Archiver, a.logger)
	}
	if pipe != nil {
		handlers.Pipeline = handler.NewPipelineHandler(pipe, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Package pipeline orchestrates one end-to-end run: fetch listings, group
// them into markets, categorize, route through human review and deploy the
// approved ones on chain.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/apepipe/internal/domain"
	"github.com/alanyoungcy/apepipe/internal/grouper"
	"github.com/alanyoungcy/apepipe/internal/notify"
	"github.com/alanyoungcy/apepipe/internal/service"
)

// runLockKey serializes pipeline executions across processes.
const runLockKey = "pipeline:run"

// approvalRunner is the slice of the approval service the pipeline drives.
type approvalRunner interface {
	PostPending(ctx context.Context, limit int) (int, error)
	CheckInitial(ctx context.Context) (service.CheckStats, error)
	PostDeployment(ctx context.Context) (int, error)
	CheckDeployment(ctx context.Context) (service.CheckStats, error)
}

// deployRunner is the slice of the deployment service the pipeline drives.
type deployRunner interface {
	DeployApproved(ctx context.Context) (service.DeployStats, error)
	TrackSubmitted(ctx context.Context) (service.DeployStats, error)
}

// listingArchiver stores raw fetch payloads for replay.
type listingArchiver interface {
	ArchiveListings(ctx context.Context, runID string, listings []domain.SourceListing) (string, error)
}

// Config holds the pipeline's tunables.
type Config struct {
	FetchLimit     int
	PostBatchLimit int
	RunInterval    time.Duration
	LockTTL        time.Duration
}

// Pipeline wires the stages together and owns the run loop. The archiver,
// dedup cache, lock manager, bus, limiter and notifier are all optional; a
// nil value disables that concern.
type Pipeline struct {
	cfg         Config
	source      domain.ListingSource
	archiver    listingArchiver
	grouper     *grouper.Grouper
	categorizer domain.Categorizer
	approvals   approvalRunner
	deployments deployRunner
	pending     domain.PendingMarketStore
	processed   domain.ProcessedMarketStore
	dedup       domain.ProcessedSet
	runs        domain.PipelineRunStore
	locks       domain.LockManager
	bus         domain.SignalBus
	limiter     domain.RateLimiter
	notifier    *notify.Notifier
	trigger     chan string
	logger      *slog.Logger
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	Source      domain.ListingSource
	Archiver    listingArchiver
	Grouper     *grouper.Grouper
	Categorizer domain.Categorizer
	Approvals   approvalRunner
	Deployments deployRunner
	Pending     domain.PendingMarketStore
	Processed   domain.ProcessedMarketStore
	Dedup       domain.ProcessedSet
	Runs        domain.PipelineRunStore
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Limiter     domain.RateLimiter
	Notifier    *notify.Notifier
}

// New creates a Pipeline.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = 4 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Pipeline{
		cfg:         cfg,
		source:      deps.Source,
		archiver:    deps.Archiver,
		grouper:     deps.Grouper,
		categorizer: deps.Categorizer,
		approvals:   deps.Approvals,
		deployments: deps.Deployments,
		pending:     deps.Pending,
		processed:   deps.Processed,
		dedup:       deps.Dedup,
		runs:        deps.Runs,
		locks:       deps.Locks,
		bus:         deps.Bus,
		limiter:     deps.Limiter,
		notifier:    deps.Notifier,
		trigger:     make(chan string, 1),
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// TriggerManual requests an out-of-schedule run. Returns false when a manual
// run is already queued.
func (p *Pipeline) TriggerManual() bool {
	select {
	case p.trigger <- "manual":
		return true
	default:
		return false
	}
}

// RunLoop executes runs on the configured interval until ctx is cancelled.
// Manual triggers are served between ticks.
func (p *Pipeline) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.RunInterval)
	defer ticker.Stop()

	// First run happens immediately.
	if _, err := p.Run(ctx, "interval"); err != nil && !errors.Is(err, domain.ErrLockHeld) {
		p.logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trig := <-p.trigger:
			if _, err := p.Run(ctx, trig); err != nil && !errors.Is(err, domain.ErrLockHeld) {
				p.logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
			}
		case <-ticker.C:
			if _, err := p.Run(ctx, "interval"); err != nil && !errors.Is(err, domain.ErrLockHeld) {
				p.logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Run executes one pipeline pass. A held run lock returns domain.ErrLockHeld
// without touching anything. A fetch failure fails the run; later stages log
// their errors and let the rest of the pass continue.
func (p *Pipeline) Run(ctx context.Context, trigger string) (domain.PipelineRun, error) {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, runLockKey, p.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				p.logger.InfoContext(ctx, "run skipped, lock held")
				return domain.PipelineRun{}, domain.ErrLockHeld
			}
			return domain.PipelineRun{}, fmt.Errorf("pipeline: run lock: %w", err)
		}
		defer unlock()
	}

	run := domain.PipelineRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.runs.Start(ctx, run); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("pipeline: start run: %w", err)
	}
	p.logger.InfoContext(ctx, "run started",
		slog.String("run_id", run.ID),
		slog.String("trigger", trigger),
	)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline: panic: %v", r)
			}
		}()
		return p.execute(ctx, &run)
	}()
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = domain.RunCompleted
	}

	if finishErr := p.runs.Finish(ctx, run); finishErr != nil {
		p.logger.ErrorContext(ctx, "record run failed",
			slog.String("run_id", run.ID),
			slog.String("error", finishErr.Error()),
		)
	}
	p.announce(ctx, run)

	p.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Duration("took", run.Duration(now)),
		slog.Int("fetched", run.Stats.Fetched),
		slog.Int("grouped", run.Stats.Grouped),
		slog.Int("posted", run.Stats.Posted),
		slog.Int("deployed", run.Stats.Deployed),
	)
	return run, err
}

func (p *Pipeline) execute(ctx context.Context, run *domain.PipelineRun) error {
	listings, err := p.fetch(ctx, run)
	if err != nil {
		return err
	}
	p.ingest(ctx, run, listings)

	if posted, err := p.approvals.PostPending(ctx, p.cfg.PostBatchLimit); err != nil {
		p.logger.ErrorContext(ctx, "post approvals failed", slog.String("error", err.Error()))
	} else {
		run.Stats.Posted = posted
		if posted > 0 {
			p.publish(ctx, domain.Event{
				Type:   "markets_posted",
				RunID:  run.ID,
				Detail: fmt.Sprintf("%d markets posted for review", posted),
				At:     time.Now().UTC(),
			})
		}
	}

	if cs, err := p.approvals.CheckInitial(ctx); err != nil {
		p.logger.ErrorContext(ctx, "check approvals failed", slog.String("error", err.Error()))
	} else {
		run.Stats.Approved += cs.Approved
		run.Stats.Rejected += cs.Rejected
		run.Stats.TimedOut += cs.TimedOut
		run.Stats.Promoted += cs.Promoted
		if cs.Approved > 0 {
			p.publish(ctx, domain.Event{
				Type:   "markets_approved",
				RunID:  run.ID,
				Detail: fmt.Sprintf("%d markets approved", cs.Approved),
				At:     time.Now().UTC(),
			})
		}
	}

	if _, err := p.approvals.PostDeployment(ctx); err != nil {
		p.logger.ErrorContext(ctx, "post deployment reviews failed", slog.String("error", err.Error()))
	}

	if cs, err := p.approvals.CheckDeployment(ctx); err != nil {
		p.logger.ErrorContext(ctx, "check deployment reviews failed", slog.String("error", err.Error()))
	} else {
		run.Stats.Approved += cs.Approved
		run.Stats.Rejected += cs.Rejected
		run.Stats.TimedOut += cs.TimedOut
	}

	if ds, err := p.deployments.DeployApproved(ctx); err != nil {
		p.logger.ErrorContext(ctx, "deploy failed", slog.String("error", err.Error()))
	} else {
		run.Stats.Deployed += ds.Deployed
		run.Stats.Failed += ds.Failed
	}

	if ds, err := p.deployments.TrackSubmitted(ctx); err != nil {
		p.logger.ErrorContext(ctx, "track submissions failed", slog.String("error", err.Error()))
	} else {
		run.Stats.Deployed += ds.Deployed
		run.Stats.Failed += ds.Failed
	}

	return nil
}

// fetch pulls current listings and archives the raw payloads.
func (p *Pipeline) fetch(ctx context.Context, run *domain.PipelineRun) ([]domain.SourceListing, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "polymarket:gamma"); err != nil {
			return nil, fmt.Errorf("pipeline: rate limit: %w", err)
		}
	}

	listings, err := p.source.FetchListings(ctx, p.cfg.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch listings: %w", err)
	}
	run.Stats.Fetched = len(listings)

	if p.archiver != nil && len(listings) > 0 {
		if path, err := p.archiver.ArchiveListings(ctx, run.ID, listings); err != nil {
			p.logger.WarnContext(ctx, "archive listings failed", slog.String("error", err.Error()))
		} else if path != "" {
			p.logger.InfoContext(ctx, "raw listings archived", slog.String("path", path))
		}
	}
	return listings, nil
}

// ingest groups new listings, categorizes them and stages the results for
// review.
func (p *Pipeline) ingest(ctx context.Context, run *domain.PipelineRun, listings []domain.SourceListing) {
	if len(listings) == 0 {
		return
	}

	seen, err := p.filterSeen(ctx, listings)
	if err != nil {
		p.logger.ErrorContext(ctx, "dedup check failed", slog.String("error", err.Error()))
		return
	}

	pendings, gstats := p.grouper.Group(listings, seen)
	run.Stats.Grouped = len(pendings)
	p.logger.InfoContext(ctx, "listings grouped",
		slog.Int("in", gstats.In),
		slog.Int("dropped", gstats.Dropped),
		slog.Int("merged", gstats.Merged),
		slog.Int("groups", gstats.Groups),
		slog.Int("singles", gstats.Singles),
	)
	if len(pendings) == 0 {
		return
	}

	p.categorize(ctx, run, pendings)

	for _, pm := range pendings {
		if err := p.pending.Upsert(ctx, pm); err != nil {
			p.logger.ErrorContext(ctx, "stage pending market failed",
				slog.String("poly_id", pm.PolyID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// filterSeen consults the Redis set first and falls back to the durable
// ledger for keys the cache has not seen.
func (p *Pipeline) filterSeen(ctx context.Context, listings []domain.SourceListing) (map[string]bool, error) {
	keys := make([]string, 0, len(listings))
	for _, l := range listings {
		keys = append(keys, l.Key())
	}

	seen := make(map[string]bool, len(keys))
	unresolved := keys

	if p.dedup != nil {
		cached, err := p.dedup.ContainsBatch(ctx, keys)
		if err != nil {
			p.logger.WarnContext(ctx, "dedup cache check failed", slog.String("error", err.Error()))
		} else {
			unresolved = unresolved[:0]
			for _, k := range keys {
				if cached[k] {
					seen[k] = true
				} else {
					unresolved = append(unresolved, k)
				}
			}
		}
	}

	if len(unresolved) > 0 {
		stored, err := p.processed.FilterProcessed(ctx, unresolved)
		if err != nil {
			return nil, err
		}
		var backfill []string
		for k, ok := range stored {
			if ok {
				seen[k] = true
				backfill = append(backfill, k)
			}
		}
		if p.dedup != nil && len(backfill) > 0 {
			if err := p.dedup.Add(ctx, backfill...); err != nil {
				p.logger.WarnContext(ctx, "dedup cache backfill failed", slog.String("error", err.Error()))
			}
		}
	}
	return seen, nil
}

// categorize assigns a category to each staged market in place. The
// categorizer never fails a whole batch; a transport error downgrades the
// batch to uncategorized and review proceeds.
func (p *Pipeline) categorize(ctx context.Context, run *domain.PipelineRun, pendings []domain.PendingMarket) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "openai:chat"); err != nil {
			p.logger.WarnContext(ctx, "rate limit wait failed", slog.String("error", err.Error()))
		}
	}

	items := make([]domain.CategorizeItem, len(pendings))
	for i, pm := range pendings {
		items[i] = domain.CategorizeItem{ID: pm.PolyID, Question: pm.Question}
	}

	results, err := p.categorizer.Categorize(ctx, items)
	if err != nil {
		p.logger.ErrorContext(ctx, "categorize failed", slog.String("error", err.Error()))
		return
	}

	byID := make(map[string]domain.CategoryResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for i := range pendings {
		r, ok := byID[pendings[i].PolyID]
		if !ok {
			continue
		}
		pendings[i].Category = r.Category
		pendings[i].NeedsManualCategorization = r.NeedsManual
		run.Stats.Categories++
	}
}

// publish serializes one lifecycle event onto the bus channel and the durable
// stream. Bus failures never interrupt a run.
func (p *Pipeline) publish(ctx context.Context, event domain.Event) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		p.logger.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
	}
	if err := p.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		p.logger.WarnContext(ctx, "append event failed", slog.String("error", err.Error()))
	}
}

// announce fans the run summary out to the bus and the notifier.
func (p *Pipeline) announce(ctx context.Context, run domain.PipelineRun) {
	p.publish(ctx, domain.Event{
		Type:   "run_" + string(run.Status),
		RunID:  run.ID,
		Detail: run.Error,
		At:     time.Now().UTC(),
	})

	if p.notifier == nil {
		return
	}
	event := notify.EventRunCompleted
	title := "Pipeline run completed"
	if run.Status == domain.RunFailed {
		event = notify.EventRunFailed
		title = "Pipeline run failed"
	}
	message := fmt.Sprintf(
		"Run %s (%s)\nFetched %d, grouped %d, posted %d, approved %d, rejected %d, deployed %d, failed %d",
		run.ID, run.Trigger,
		run.Stats.Fetched, run.Stats.Grouped, run.Stats.Posted,
		run.Stats.Approved, run.Stats.Rejected, run.Stats.Deployed, run.Stats.Failed,
	)
	if run.Error != "" {
		message += "\n" + run.Error
	}
	if err := p.notifier.Notify(ctx, event, title, message); err != nil {
		p.logger.WarnContext(ctx, "run notification failed", slog.String("error", err.Error()))
	}
}

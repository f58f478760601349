package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
	"github.com/alanyoungcy/apepipe/internal/grouper"
	"github.com/alanyoungcy/apepipe/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	listings []domain.SourceListing
	err      error
}

func (f *fakeSource) FetchListings(_ context.Context, _ int) ([]domain.SourceListing, error) {
	return f.listings, f.err
}

type fakePending struct {
	upserted []domain.PendingMarket
}

func (f *fakePending) Upsert(_ context.Context, pm domain.PendingMarket) error {
	f.upserted = append(f.upserted, pm)
	return nil
}
func (f *fakePending) GetByPolyID(context.Context, string) (domain.PendingMarket, error) {
	return domain.PendingMarket{}, domain.ErrNotFound
}
func (f *fakePending) ListUnposted(context.Context, int) ([]domain.PendingMarket, error) {
	return nil, nil
}
func (f *fakePending) ListPosted(context.Context) ([]domain.PendingMarket, error) { return nil, nil }
func (f *fakePending) MarkPosted(context.Context, string, string) error           { return nil }
func (f *fakePending) Delete(context.Context, string) error                       { return nil }
func (f *fakePending) Count(context.Context) (int64, error)                       { return 0, nil }

type fakeProcessed struct {
	keys map[string]bool
}

func (f *fakeProcessed) MarkProcessed(_ context.Context, key, _ string) error {
	f.keys[key] = true
	return nil
}
func (f *fakeProcessed) IsProcessed(_ context.Context, key string) (bool, error) {
	return f.keys[key], nil
}
func (f *fakeProcessed) FilterProcessed(_ context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = f.keys[k]
	}
	return out, nil
}
func (f *fakeProcessed) Count(context.Context) (int64, error) { return int64(len(f.keys)), nil }

type fakeRuns struct {
	started  []domain.PipelineRun
	finished []domain.PipelineRun
}

func (f *fakeRuns) Start(_ context.Context, run domain.PipelineRun) error {
	f.started = append(f.started, run)
	return nil
}
func (f *fakeRuns) Finish(_ context.Context, run domain.PipelineRun) error {
	f.finished = append(f.finished, run)
	return nil
}
func (f *fakeRuns) GetByID(context.Context, string) (domain.PipelineRun, error) {
	return domain.PipelineRun{}, domain.ErrNotFound
}
func (f *fakeRuns) ListRecent(context.Context, int) ([]domain.PipelineRun, error) { return nil, nil }

type fakeCategorizer struct{}

func (fakeCategorizer) Categorize(_ context.Context, items []domain.CategorizeItem) ([]domain.CategoryResult, error) {
	out := make([]domain.CategoryResult, len(items))
	for i, item := range items {
		out[i] = domain.CategoryResult{ID: item.ID, Category: "sports", Confidence: 0.9}
	}
	return out, nil
}

type fakeApprovals struct {
	posted       int
	initial      service.CheckStats
	deployPosted int
	deployment   service.CheckStats
}

func (f *fakeApprovals) PostPending(context.Context, int) (int, error) { return f.posted, nil }
func (f *fakeApprovals) CheckInitial(context.Context) (service.CheckStats, error) {
	return f.initial, nil
}
func (f *fakeApprovals) PostDeployment(context.Context) (int, error) { return f.deployPosted, nil }
func (f *fakeApprovals) CheckDeployment(context.Context) (service.CheckStats, error) {
	return f.deployment, nil
}

type fakeDeployments struct {
	deploy service.DeployStats
	track  service.DeployStats
}

func (f *fakeDeployments) DeployApproved(context.Context) (service.DeployStats, error) {
	return f.deploy, nil
}
func (f *fakeDeployments) TrackSubmitted(context.Context) (service.DeployStats, error) {
	return f.track, nil
}

func futureDate(t *testing.T) *time.Time {
	t.Helper()
	d := time.Now().Add(90 * 24 * time.Hour)
	return &d
}

func TestRunHappyPath(t *testing.T) {
	end := futureDate(t)
	source := &fakeSource{listings: []domain.SourceListing{
		{
			ConditionID: "0xnew",
			Question:    "Will it rain tomorrow?",
			Outcomes:    []string{"Yes", "No"},
			EndDate:     end,
		},
		{
			ConditionID: "0xseen",
			Question:    "Will it snow tomorrow?",
			Outcomes:    []string{"Yes", "No"},
			EndDate:     end,
		},
	}}
	pending := &fakePending{}
	processed := &fakeProcessed{keys: map[string]bool{"0xseen": true}}
	runs := &fakeRuns{}
	approvals := &fakeApprovals{
		posted:     1,
		initial:    service.CheckStats{Approved: 1, Promoted: 1},
		deployment: service.CheckStats{Rejected: 1},
	}
	deployments := &fakeDeployments{
		deploy: service.DeployStats{Deployed: 1},
		track:  service.DeployStats{Failed: 1},
	}

	p := New(Config{FetchLimit: 50}, Deps{
		Source:      source,
		Grouper:     grouper.New(testLogger()),
		Categorizer: fakeCategorizer{},
		Approvals:   approvals,
		Deployments: deployments,
		Pending:     pending,
		Processed:   processed,
		Runs:        runs,
	}, testLogger())

	run, err := p.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %s", run.Status)
	}
	if run.Trigger != "manual" {
		t.Errorf("trigger = %s", run.Trigger)
	}

	// The already-processed listing is filtered before grouping.
	if run.Stats.Fetched != 2 || run.Stats.Grouped != 1 {
		t.Errorf("stats = %+v", run.Stats)
	}
	if len(pending.upserted) != 1 {
		t.Fatalf("staged = %d, want 1", len(pending.upserted))
	}
	if pending.upserted[0].PolyID != "0xnew" {
		t.Errorf("staged wrong market: %s", pending.upserted[0].PolyID)
	}
	if pending.upserted[0].Category != "sports" {
		t.Errorf("category = %q", pending.upserted[0].Category)
	}

	if run.Stats.Posted != 1 || run.Stats.Approved != 1 || run.Stats.Rejected != 1 {
		t.Errorf("review stats = %+v", run.Stats)
	}
	if run.Stats.Deployed != 1 || run.Stats.Failed != 1 {
		t.Errorf("deploy stats = %+v", run.Stats)
	}

	if len(runs.started) != 1 || len(runs.finished) != 1 {
		t.Fatalf("run history: started=%d finished=%d", len(runs.started), len(runs.finished))
	}
	if runs.finished[0].Status != domain.RunCompleted {
		t.Errorf("recorded status = %s", runs.finished[0].Status)
	}
	if runs.finished[0].FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestRunFetchFailure(t *testing.T) {
	runs := &fakeRuns{}
	p := New(Config{}, Deps{
		Source:      &fakeSource{err: errors.New("gamma unreachable")},
		Grouper:     grouper.New(testLogger()),
		Categorizer: fakeCategorizer{},
		Approvals:   &fakeApprovals{},
		Deployments: &fakeDeployments{},
		Pending:     &fakePending{},
		Processed:   &fakeProcessed{keys: map[string]bool{}},
		Runs:        runs,
	}, testLogger())

	run, err := p.Run(context.Background(), "interval")
	if err == nil {
		t.Fatal("expected error")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %s", run.Status)
	}
	if run.Error == "" {
		t.Error("error not recorded")
	}
	if len(runs.finished) != 1 || runs.finished[0].Status != domain.RunFailed {
		t.Errorf("failed run not recorded: %+v", runs.finished)
	}
}

func TestTriggerManualQueue(t *testing.T) {
	p := New(Config{}, Deps{}, testLogger())
	if !p.TriggerManual() {
		t.Error("first trigger should queue")
	}
	if p.TriggerManual() {
		t.Error("second trigger should report a full queue")
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func newTestApprovalService(t *testing.T) (*ApprovalService, *fakePendingStore, *fakeMarketStore, *fakeApprovalLog, *fakeProcessedStore, *fakeMessenger) {
	t.Helper()
	pending := newFakePendingStore()
	markets := newFakeMarketStore()
	decisions := newFakeApprovalLog()
	processed := newFakeProcessedStore()
	messenger := newFakeMessenger()
	promoter := NewPromotionService(pending, markets, testLogger())

	svc := NewApprovalService(ApprovalConfig{
		BotUserID: "UBOT",
		Messenger: messenger,
		Decisions: decisions,
		Pending:   pending,
		Markets:   markets,
		Processed: processed,
		Promoter:  promoter,
	}, testLogger())
	return svc, pending, markets, decisions, processed, messenger
}

func TestPostPending(t *testing.T) {
	svc, pending, _, _, _, messenger := newTestApprovalService(t)
	ctx := context.Background()

	_ = pending.Upsert(ctx, domain.PendingMarket{PolyID: "0xaaa", Question: "A?"})
	_ = pending.Upsert(ctx, domain.PendingMarket{PolyID: "0xbbb", Question: "B?"})

	posted, err := svc.PostPending(ctx, 10)
	if err != nil {
		t.Fatalf("PostPending: %v", err)
	}
	if posted != 2 {
		t.Errorf("posted = %d, want 2", posted)
	}
	if len(messenger.posted) != 2 {
		t.Errorf("messages sent = %d, want 2", len(messenger.posted))
	}

	pm, _ := pending.GetByPolyID(ctx, "0xaaa")
	if !pm.Posted || pm.SlackMessageID == "" {
		t.Errorf("market not marked posted: %+v", pm)
	}
}

func TestCheckInitialApprovedPromotes(t *testing.T) {
	svc, pending, markets, decisions, processed, messenger := newTestApprovalService(t)
	ctx := context.Background()

	pm := domain.PendingMarket{
		PolyID:            "group_x",
		Question:          "Top goalscorer in the EPL",
		Posted:            true,
		SlackMessageID:    "msg-1",
		OriginalMarketIDs: []string{"0x1", "0x2"},
		FetchedAt:         time.Now().Add(-time.Hour),
	}
	_ = pending.Upsert(ctx, pm)
	messenger.setReactions("msg-1", domain.ReactionSet{
		"white_check_mark": {"UBOT", "UALICE"},
	})

	stats, err := svc.CheckInitial(ctx)
	if err != nil {
		t.Fatalf("CheckInitial: %v", err)
	}
	if stats.Approved != 1 || stats.Promoted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	m, err := markets.GetByPolyID(ctx, "group_x")
	if err != nil {
		t.Fatalf("promoted market missing: %v", err)
	}
	if m.Status != domain.StatusNew {
		t.Errorf("status = %s", m.Status)
	}

	entry, err := decisions.GetByPolyID(ctx, "group_x", domain.StageInitial)
	if err != nil {
		t.Fatalf("decision not recorded: %v", err)
	}
	if entry.Decision != domain.OutcomeApproved || entry.Reviewer != "UALICE" {
		t.Errorf("entry = %+v", entry)
	}

	for _, key := range []string{"0x1", "0x2"} {
		if ok, _ := processed.IsProcessed(ctx, key); !ok {
			t.Errorf("source key %s not marked processed", key)
		}
	}
	if _, err := pending.GetByPolyID(ctx, "group_x"); err != domain.ErrNotFound {
		t.Errorf("pending row survived promotion: %v", err)
	}
}

func TestCheckInitialRejected(t *testing.T) {
	svc, pending, markets, _, processed, messenger := newTestApprovalService(t)
	ctx := context.Background()

	_ = pending.Upsert(ctx, domain.PendingMarket{
		PolyID:         "0xr",
		Question:       "R?",
		Posted:         true,
		SlackMessageID: "msg-1",
		FetchedAt:      time.Now().Add(-time.Hour),
	})
	// Rejection wins even when both markers are present.
	messenger.setReactions("msg-1", domain.ReactionSet{
		"white_check_mark": {"UALICE"},
		"x":                {"UBOB"},
	})

	stats, err := svc.CheckInitial(ctx)
	if err != nil {
		t.Fatalf("CheckInitial: %v", err)
	}
	if stats.Rejected != 1 || stats.Approved != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if all, _ := markets.List(ctx, domain.ListOpts{}); len(all) != 0 {
		t.Errorf("rejected market was promoted")
	}
	if outcome := processed.outcomes["0xr"]; outcome != "rejected" {
		t.Errorf("outcome = %q", outcome)
	}
	if _, err := pending.GetByPolyID(ctx, "0xr"); err != domain.ErrNotFound {
		t.Errorf("pending row survived rejection")
	}
}

func TestCheckInitialTimeout(t *testing.T) {
	svc, pending, _, decisions, processed, _ := newTestApprovalService(t)
	ctx := context.Background()

	_ = pending.Upsert(ctx, domain.PendingMarket{
		PolyID:         "0xt",
		Question:       "T?",
		Posted:         true,
		SlackMessageID: "msg-1",
		FetchedAt:      time.Now().Add(-8 * 24 * time.Hour),
	})

	stats, err := svc.CheckInitial(ctx)
	if err != nil {
		t.Fatalf("CheckInitial: %v", err)
	}
	if stats.TimedOut != 1 {
		t.Errorf("stats = %+v", stats)
	}
	entry, err := decisions.GetByPolyID(ctx, "0xt", domain.StageInitial)
	if err != nil {
		t.Fatalf("decision not recorded: %v", err)
	}
	if entry.Reviewer != domain.TimeoutReviewer {
		t.Errorf("reviewer = %q", entry.Reviewer)
	}
	if outcome := processed.outcomes["0xt"]; outcome != "timeout" {
		t.Errorf("outcome = %q", outcome)
	}
}

func TestPostDeployment(t *testing.T) {
	svc, _, markets, _, _, messenger := newTestApprovalService(t)
	ctx := context.Background()

	_ = markets.Create(ctx, domain.Market{
		ID:               "m1",
		Question:         "Q?",
		OriginalMarketID: "0xq",
		Status:           domain.StatusNew,
	})

	posted, err := svc.PostDeployment(ctx)
	if err != nil {
		t.Fatalf("PostDeployment: %v", err)
	}
	if posted != 1 {
		t.Errorf("posted = %d", posted)
	}
	if len(messenger.posted) != 1 {
		t.Errorf("messages sent = %d", len(messenger.posted))
	}

	m, _ := markets.GetByID(ctx, "m1")
	if m.Status != domain.StatusPendingDeployment {
		t.Errorf("status = %s", m.Status)
	}
	if m.SlackMessageID == "" {
		t.Error("review message id not recorded")
	}
}

func TestCheckDeployment(t *testing.T) {
	tests := []struct {
		name      string
		reactions domain.ReactionSet
		updatedAt time.Time
		want      domain.MarketStatus
	}{
		{
			name:      "approved moves to deploying",
			reactions: domain.ReactionSet{"thumbsup": {"UALICE"}},
			updatedAt: time.Now().Add(-time.Hour),
			want:      domain.StatusDeploying,
		},
		{
			name:      "rejected is terminal",
			reactions: domain.ReactionSet{"x": {"UBOB"}},
			updatedAt: time.Now().Add(-time.Hour),
			want:      domain.StatusDeploymentRejected,
		},
		{
			name:      "timeout is terminal",
			reactions: domain.ReactionSet{},
			updatedAt: time.Now().Add(-8 * 24 * time.Hour),
			want:      domain.StatusDeploymentTimeout,
		},
		{
			name:      "no decision stays put",
			reactions: domain.ReactionSet{"eyes": {"UALICE"}},
			updatedAt: time.Now().Add(-time.Hour),
			want:      domain.StatusPendingDeployment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, markets, _, _, messenger := newTestApprovalService(t)
			ctx := context.Background()

			_ = markets.Create(ctx, domain.Market{
				ID:               "m1",
				Question:         "Q?",
				OriginalMarketID: "0xq",
				Status:           domain.StatusPendingDeployment,
				SlackMessageID:   "msg-9",
				UpdatedAt:        tt.updatedAt,
			})
			messenger.setReactions("msg-9", tt.reactions)

			if _, err := svc.CheckDeployment(ctx); err != nil {
				t.Fatalf("CheckDeployment: %v", err)
			}
			m, _ := markets.GetByID(ctx, "m1")
			if m.Status != tt.want {
				t.Errorf("status = %s, want %s", m.Status, tt.want)
			}
		})
	}
}

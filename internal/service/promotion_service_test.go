package service

import (
	"context"
	"testing"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func TestPromoteCreatesMarket(t *testing.T) {
	pending := newFakePendingStore()
	markets := newFakeMarketStore()
	svc := NewPromotionService(pending, markets, testLogger())

	pm := domain.PendingMarket{
		PolyID:            "group_ab12",
		Question:          "La Liga Winner",
		Category:          "sports",
		Options:           []string{"Real Madrid", "Barcelona", "Atletico Madrid"},
		EventName:         "La Liga 2025-26",
		OriginalMarketIDs: []string{"0xaaa", "0xbbb", "0xccc"},
	}
	_ = pending.Upsert(context.Background(), pm)

	m, err := svc.Promote(context.Background(), pm)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if m.ID == "" {
		t.Error("expected generated market id")
	}
	if m.Status != domain.StatusNew {
		t.Errorf("status = %s, want %s", m.Status, domain.StatusNew)
	}
	if m.Type != "multiple" {
		t.Errorf("type = %s, want multiple", m.Type)
	}
	if m.OriginalMarketID != "group_ab12" {
		t.Errorf("original id = %s", m.OriginalMarketID)
	}

	if _, err := pending.GetByPolyID(context.Background(), "group_ab12"); err != domain.ErrNotFound {
		t.Errorf("pending row not cleaned up: %v", err)
	}
}

func TestPromoteIdempotent(t *testing.T) {
	pending := newFakePendingStore()
	markets := newFakeMarketStore()
	svc := NewPromotionService(pending, markets, testLogger())

	pm := domain.PendingMarket{
		PolyID:   "0xdead",
		Question: "Will it rain?",
		Options:  []string{"Yes", "No"},
	}
	_ = pending.Upsert(context.Background(), pm)

	first, err := svc.Promote(context.Background(), pm)
	if err != nil {
		t.Fatalf("first Promote: %v", err)
	}

	// A second decision sweep sees the same pending market again.
	_ = pending.Upsert(context.Background(), pm)
	second, err := svc.Promote(context.Background(), pm)
	if err != nil {
		t.Fatalf("second Promote: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second promotion created a new market: %s != %s", second.ID, first.ID)
	}

	all, _ := markets.List(context.Background(), domain.ListOpts{})
	if len(all) != 1 {
		t.Errorf("market count = %d, want 1", len(all))
	}
	if first.Type != "binary" {
		t.Errorf("type = %s, want binary", first.Type)
	}
}

package grouper

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func testGrouper(now time.Time) *Grouper {
	g := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.now = func() time.Time { return now }
	return g
}

func listing(id, question string, outcomes ...string) domain.SourceListing {
	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.SourceListing{
		ID:          id,
		ConditionID: id,
		Question:    question,
		Outcomes:    outcomes,
		EndDate:     &end,
	}
}

func TestGroupMergesLeagueWinners(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	g := testGrouper(now)

	in := []domain.SourceListing{
		listing("m1", "Will Real Madrid win La Liga?", "Yes", "No"),
		listing("m2", "Will Barcelona win La Liga?", "Yes", "No"),
		listing("m3", "Will Bitcoin reach $200k in 2026?", "Yes", "No"),
	}

	out, stats := g.Group(in, nil)

	if len(out) != 2 {
		t.Fatalf("Group() returned %d markets, want 2", len(out))
	}
	if stats.Groups != 1 || stats.Singles != 1 || stats.Merged != 2 {
		t.Errorf("stats = %+v, want 1 group, 1 single, 2 merged", stats)
	}

	compound := out[0]
	if compound.Question != "La Liga Winner" {
		t.Errorf("compound question = %q, want La Liga Winner", compound.Question)
	}
	if len(compound.Options) != 2 || compound.Options[0] != "Real Madrid" || compound.Options[1] != "Barcelona" {
		t.Errorf("compound options = %v", compound.Options)
	}
	if !strings.HasPrefix(compound.PolyID, "group_") {
		t.Errorf("compound id = %q, want group_ prefix", compound.PolyID)
	}
	if len(compound.OriginalMarketIDs) != 2 {
		t.Errorf("provenance ids = %v", compound.OriginalMarketIDs)
	}
	if !compound.IsGrouped() {
		t.Error("compound market should report IsGrouped")
	}

	single := out[1]
	if single.PolyID != "m3" || single.IsGrouped() {
		t.Errorf("single = %+v, want binary pass-through of m3", single)
	}
}

func TestGroupNonBinaryMemberFailSafe(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	g := testGrouper(now)

	in := []domain.SourceListing{
		listing("m1", "Will Arsenal win the Premier League?", "Yes", "No"),
		listing("m2", "Will Liverpool win the Premier League?", "Yes", "No", "Draw"),
	}

	out, stats := g.Group(in, nil)

	if len(out) != 2 {
		t.Fatalf("Group() returned %d markets, want 2 individual pass-throughs", len(out))
	}
	if stats.Groups != 0 || stats.Singles != 2 {
		t.Errorf("stats = %+v, want no compound markets", stats)
	}
	for _, pm := range out {
		if strings.HasPrefix(pm.PolyID, "group_") {
			t.Errorf("unexpected compound market %q", pm.PolyID)
		}
	}
}

func TestGroupDropsBeforeGrouping(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)

	expired := listing("m1", "Will Chelsea win the Premier League?", "Yes", "No")
	expired.EndDate = &past
	closed := listing("m2", "Will PSG win Ligue 1?", "Yes", "No")
	closed.Closed = true
	noQuestion := listing("m3", "", "Yes", "No")
	ok := listing("m4", "Will Bayern win Bundesliga?", "Yes", "No")

	g := testGrouper(now)
	out, stats := g.Group(
		[]domain.SourceListing{expired, closed, noQuestion, ok},
		map[string]bool{"m4-processed": true},
	)

	if stats.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", stats.Dropped)
	}
	if len(out) != 1 || out[0].PolyID != "m4" {
		t.Fatalf("out = %+v, want only m4", out)
	}

	// Second run with m4 marked processed yields nothing.
	out, _ = g.Group([]domain.SourceListing{ok}, map[string]bool{"m4": true})
	if len(out) != 0 {
		t.Errorf("processed listing re-emitted: %+v", out)
	}
}

func TestGroupStableIDs(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	in := []domain.SourceListing{
		listing("m1", "Will Real Madrid win La Liga?", "Yes", "No"),
		listing("m2", "Will Barcelona win La Liga?", "Yes", "No"),
	}

	a, _ := testGrouper(now).Group(in, nil)
	b, _ := testGrouper(now).Group(in, nil)
	if a[0].PolyID != b[0].PolyID {
		t.Errorf("group id not stable across runs: %q vs %q", a[0].PolyID, b[0].PolyID)
	}
}

func TestGroupTitle(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		question string
		want     string
	}{
		{"goalscorer", "will entity be the top goalscorer in the epl?", "Will Haaland be the top goalscorer in the EPL?", "Top goalscorer in the EPL"},
		{"la liga", "will entity win la liga?", "Will Real Madrid win La Liga?", "La Liga Winner"},
		{"president", "will entity be the next president of france?", "Will Macron be the next president of France?", "The next President of France"},
		{"oscar", "will entity win the oscar for best picture", "Will Oppenheimer win the Oscar for Best Picture?", "Oscar Winner for Best Picture"},
		{"election", "will entity win the 2026 midterm election?", "Will Democrats win the 2026 midterm election?", "2026 midterm Election Winner"},
		{"generic", "will entity be champion?", "Will Ferrari be champion?", "Champion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := groupTitle(tt.base, tt.question); got != tt.want {
				t.Errorf("groupTitle(%q, %q) = %q, want %q", tt.base, tt.question, got, tt.want)
			}
		})
	}
}

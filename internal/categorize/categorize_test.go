package categorize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func TestKeyword(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"crypto", "Will Bitcoin exceed $100,000 by the end of 2026?", "crypto"},
		{"politics", "Will the Democratic candidate win the presidential election?", "politics"},
		{"sports", "Will Manchester United win the Premier League this season?", "sports"},
		{"culture", "Will Oppenheimer win the Oscar for Best Picture?", "culture"},
		{"tech", "Will Apple release a new AI smartphone this year?", "tech"},
		{"default", "Will it rain in Lisbon tomorrow?", "news"},
		{"whole words only", "Will the bitcoins-like asset moon?", "news"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keyword(tt.question); got != tt.want {
				t.Errorf("Keyword(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

type stubLLM struct {
	scored map[string]Scored
	err    error
	calls  int
}

func (s *stubLLM) CategorizeBatch(ctx context.Context, items []domain.CategorizeItem) (map[string]Scored, error) {
	s.calls++
	return s.scored, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceCategorize(t *testing.T) {
	items := []domain.CategorizeItem{
		{ID: "a", Question: "Will Bitcoin exceed $100,000?"},
		{ID: "b", Question: "Will Arsenal win the Premier League?"},
		{ID: "c", Question: "Will something unforeseen happen?"},
		{ID: "d", Question: "Will Ethereum flip Bitcoin?"},
	}

	llm := &stubLLM{scored: map[string]Scored{
		"a": {Category: "crypto", Confidence: 0.95},
		"b": {Category: "sports", Confidence: 0.4},      // below threshold
		"c": {Category: "weather", Confidence: 0.9},     // outside vocabulary
		// "d" absent from response
	}}

	svc := NewService(llm, 0.7, 10, discard())
	got, err := svc.Categorize(context.Background(), items)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d results, want %d", len(got), len(items))
	}

	if got[0].Category != "crypto" || got[0].NeedsManual {
		t.Errorf("confident result mishandled: %+v", got[0])
	}
	if got[1].Category != "sports" || !got[1].NeedsManual {
		t.Errorf("low-confidence result should fall back with manual flag: %+v", got[1])
	}
	if !Valid(got[2].Category) || !got[2].NeedsManual {
		t.Errorf("out-of-vocabulary result should fall back: %+v", got[2])
	}
	if got[3].Category != "crypto" || !got[3].NeedsManual {
		t.Errorf("missing item should get keyword category: %+v", got[3])
	}
	for i, r := range got {
		if r.ID != items[i].ID {
			t.Errorf("result %d id = %q, want %q (order must be preserved)", i, r.ID, items[i].ID)
		}
	}
}

func TestServiceLLMFailureDegradesWholeBatch(t *testing.T) {
	items := []domain.CategorizeItem{
		{ID: "a", Question: "Will Bitcoin exceed $100,000?"},
		{ID: "b", Question: "Will the senate pass the bill?"},
	}
	svc := NewService(&stubLLM{err: errors.New("boom")}, 0.7, 10, discard())

	got, err := svc.Categorize(context.Background(), items)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Category != "crypto" || got[1].Category != "politics" {
		t.Errorf("keyword degradation wrong: %+v", got)
	}
	for _, r := range got {
		if !r.NeedsManual {
			t.Errorf("degraded result not flagged for manual review: %+v", r)
		}
	}
}

func TestServiceNilLLM(t *testing.T) {
	svc := NewService(nil, 0.7, 10, discard())
	got, err := svc.Categorize(context.Background(), []domain.CategorizeItem{
		{ID: "a", Question: "Will Netflix win an Emmy?"},
	})
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
	if got[0].Category != "culture" || !got[0].NeedsManual {
		t.Errorf("nil llm result = %+v", got[0])
	}
}

func TestServiceBatching(t *testing.T) {
	llm := &stubLLM{scored: map[string]Scored{}}
	svc := NewService(llm, 0.7, 2, discard())

	items := make([]domain.CategorizeItem, 5)
	for i := range items {
		items[i] = domain.CategorizeItem{ID: string(rune('a' + i)), Question: "?"}
	}
	got, _ := svc.Categorize(context.Background(), items)
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5", len(got))
	}
	if llm.calls != 3 {
		t.Errorf("llm called %d times, want 3 batches of <=2", llm.calls)
	}
}

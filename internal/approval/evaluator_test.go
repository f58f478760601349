package approval

import (
	"testing"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func TestEvaluate(t *testing.T) {
	posted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	tests := []struct {
		name      string
		reactions domain.ReactionSet
		elapsed   time.Duration
		want      domain.DecisionOutcome
		reviewer  string
	}{
		{
			name:      "checkmark approves",
			reactions: domain.ReactionSet{"white_check_mark": {"U100"}},
			elapsed:   time.Hour,
			want:      domain.OutcomeApproved,
			reviewer:  "U100",
		},
		{
			name:      "thumbsup approves",
			reactions: domain.ReactionSet{"thumbsup": {"U200"}},
			elapsed:   time.Hour,
			want:      domain.OutcomeApproved,
			reviewer:  "U200",
		},
		{
			name:      "x rejects",
			reactions: domain.ReactionSet{"x": {"U300"}},
			elapsed:   time.Hour,
			want:      domain.OutcomeRejected,
			reviewer:  "U300",
		},
		{
			name: "rejection wins over approval",
			reactions: domain.ReactionSet{
				"white_check_mark": {"U100"},
				"-1":               {"U300"},
			},
			elapsed:  time.Hour,
			want:     domain.OutcomeRejected,
			reviewer: "U300",
		},
		{
			name:      "bot reactions ignored",
			reactions: domain.ReactionSet{"white_check_mark": {"UBOT"}, "x": {"UBOT"}},
			elapsed:   time.Hour,
			want:      domain.OutcomePending,
		},
		{
			name:      "bot filtered, human counted",
			reactions: domain.ReactionSet{"white_check_mark": {"UBOT", "U100"}},
			elapsed:   time.Hour,
			want:      domain.OutcomeApproved,
			reviewer:  "U100",
		},
		{
			name:      "unrelated reactions stay pending",
			reactions: domain.ReactionSet{"eyes": {"U100"}},
			elapsed:   time.Hour,
			want:      domain.OutcomePending,
		},
		{
			name:      "within window stays pending",
			reactions: nil,
			elapsed:   6 * 24 * time.Hour,
			want:      domain.OutcomePending,
		},
		{
			name:      "past window times out",
			reactions: nil,
			elapsed:   8 * 24 * time.Hour,
			want:      domain.OutcomeTimeout,
			reviewer:  domain.TimeoutReviewer,
		},
		{
			name:      "late approval beats timeout",
			reactions: domain.ReactionSet{"+1": {"U100"}},
			elapsed:   8 * 24 * time.Hour,
			want:      domain.OutcomeApproved,
			reviewer:  "U100",
		},
	}

	e := Evaluator{BotUserID: "UBOT", Window: window}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(tt.reactions, posted, posted.Add(tt.elapsed))
			if got.Outcome != tt.want {
				t.Fatalf("Evaluate() outcome = %q, want %q", got.Outcome, tt.want)
			}
			if tt.reviewer != "" && got.Reviewer != tt.reviewer {
				t.Errorf("Evaluate() reviewer = %q, want %q", got.Reviewer, tt.reviewer)
			}
			if got.Outcome.Decided() != (tt.want != domain.OutcomePending) {
				t.Errorf("Decided() = %v inconsistent with outcome %q", got.Outcome.Decided(), got.Outcome)
			}
		})
	}
}

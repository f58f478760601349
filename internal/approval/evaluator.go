// Package approval evaluates reaction sets on posted review messages into
// approve/reject/timeout decisions.
package approval

import (
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// approveMarkers and rejectMarkers are the recognized reaction names. Slack
// aliases that render the same symbol count the same.
var (
	approveMarkers = map[string]bool{
		"white_check_mark": true,
		"+1":               true,
		"thumbsup":         true,
	}
	rejectMarkers = map[string]bool{
		"x":          true,
		"-1":         true,
		"thumbsdown": true,
	}
)

// Evaluator turns reaction sets into decisions. It is pure: no clock, no IO;
// the caller supplies now.
type Evaluator struct {
	// BotUserID is filtered out of every reactor set so seeded
	// acknowledgement reactions never count as a human decision.
	BotUserID string
	// Window is how long a posted message waits before timing out.
	Window time.Duration
}

// Evaluate resolves the decision for a message posted at postedAt given its
// current reactions. Rejection takes precedence over approval when both
// markers are present. When neither marker is present and the window has
// elapsed, the decision is a timeout attributed to domain.TimeoutReviewer.
func (e Evaluator) Evaluate(reactions domain.ReactionSet, postedAt, now time.Time) domain.Decision {
	if reviewer, ok := e.firstReviewer(reactions, rejectMarkers); ok {
		return domain.Decision{Outcome: domain.OutcomeRejected, Reviewer: reviewer}
	}
	if reviewer, ok := e.firstReviewer(reactions, approveMarkers); ok {
		return domain.Decision{Outcome: domain.OutcomeApproved, Reviewer: reviewer}
	}
	if now.Sub(postedAt) > e.Window {
		return domain.Decision{Outcome: domain.OutcomeTimeout, Reviewer: domain.TimeoutReviewer}
	}
	return domain.Decision{Outcome: domain.OutcomePending}
}

// firstReviewer returns the first non-bot user who reacted with any marker in
// the set. Reaction iteration order follows the order the messaging service
// returned, which is not guaranteed stable.
func (e Evaluator) firstReviewer(reactions domain.ReactionSet, markers map[string]bool) (string, bool) {
	for name, users := range reactions {
		if !markers[name] {
			continue
		}
		for _, u := range users {
			if u == "" || u == e.BotUserID {
				continue
			}
			return u, true
		}
	}
	return "", false
}

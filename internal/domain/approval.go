package domain

import "time"

// TimeoutReviewer is the sentinel recorded as the reviewer when a decision is
// produced by the age-based timeout rather than a human reaction.
const TimeoutReviewer = "SYSTEM_TIMEOUT"

// ApprovalStage distinguishes the two human checkpoints a market passes.
type ApprovalStage string

const (
	StageInitial    ApprovalStage = "initial"
	StageDeployment ApprovalStage = "deployment"
)

// DecisionOutcome is the result of evaluating a posted market's reactions.
type DecisionOutcome string

const (
	// OutcomePending means no decision yet; re-check on the next poll.
	OutcomePending  DecisionOutcome = "pending"
	OutcomeApproved DecisionOutcome = "approved"
	OutcomeRejected DecisionOutcome = "rejected"
	OutcomeTimeout  DecisionOutcome = "timeout"
)

// Decided reports whether the outcome is final (anything but pending).
func (o DecisionOutcome) Decided() bool {
	return o != OutcomePending
}

// Decision is the evaluated result for one posted market.
type Decision struct {
	Outcome  DecisionOutcome
	Reviewer string // user id, or TimeoutReviewer for timeouts
}

// ApprovalLog is one immutable audit row for a human (or timeout) decision.
// At most one decision exists per (poly_id, stage); the store enforces this
// and reports duplicates as ErrAlreadyDecided.
type ApprovalLog struct {
	ID         int64
	PolyID     string
	Stage      ApprovalStage
	SlackMsgID string
	Reviewer   string
	Decision   DecisionOutcome
	Reason     string
	CreatedAt  time.Time
}

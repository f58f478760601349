package domain

import "time"

// MarketStatus is the closed set of lifecycle states for an approved market.
// All writes go through Transition so an invalid status string can never reach
// the store.
type MarketStatus string

const (
	// StatusNew is a freshly promoted market awaiting deployment approval.
	StatusNew MarketStatus = "new"
	// StatusRejected marks a placeholder row kept for audit of a rejected market.
	StatusRejected MarketStatus = "rejected"
	// StatusPendingDeployment means the market was posted for final QA.
	StatusPendingDeployment MarketStatus = "pending_deployment"
	// StatusDeploying means the createMarket transaction is being submitted or
	// has been submitted but the on-chain id is not yet resolved.
	StatusDeploying MarketStatus = "deploying"
	// StatusDeployed is terminal: the market exists on chain.
	StatusDeployed MarketStatus = "deployed"
	// StatusDeploymentFailed is terminal: submission failed, no automatic retry.
	StatusDeploymentFailed MarketStatus = "deployment_failed"
	// StatusDeploymentRejected is terminal: a reviewer rejected final QA.
	StatusDeploymentRejected MarketStatus = "deployment_rejected"
	// StatusDeploymentTimeout is terminal: final QA expired without a decision.
	StatusDeploymentTimeout MarketStatus = "deployment_timeout"
)

// legalTransitions maps each status to the statuses it may move to.
var legalTransitions = map[MarketStatus][]MarketStatus{
	StatusNew:               {StatusPendingDeployment},
	StatusPendingDeployment: {StatusDeploying, StatusDeploymentRejected, StatusDeploymentTimeout},
	StatusDeploying:         {StatusDeployed, StatusDeploymentFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s MarketStatus) CanTransition(next MarketStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s MarketStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// Valid reports whether s is one of the defined statuses.
func (s MarketStatus) Valid() bool {
	switch s {
	case StatusNew, StatusRejected, StatusPendingDeployment, StatusDeploying,
		StatusDeployed, StatusDeploymentFailed, StatusDeploymentRejected, StatusDeploymentTimeout:
		return true
	}
	return false
}

// Market is an approved market, possibly deployed to Apechain.
//
// Invariant: ApechainMarketID != "" implies Status == StatusDeployed and
// BlockchainTx != "". Rows with an on-chain id are never hard-deleted.
type Market struct {
	ID               string
	Question         string
	Type             string // "binary" or "multiple"
	Category         string
	SubCategory      string
	Options          []string
	Expiry           *int64 // unix seconds, nil when unknown
	OriginalMarketID string
	Status           MarketStatus
	BannerURI        string
	IconURL          string
	OptionImages     map[string]string
	EventID          string
	EventName        string
	SlackMessageID   string // deployment review message, set when posted for final QA
	ApechainMarketID string
	BlockchainTx     string
	FailureReason    string // cause of a terminal deployment failure
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transition moves the market to next, returning ErrInvalidTransition when the
// move is not legal from the current status.
func (m *Market) Transition(next MarketStatus) error {
	if !m.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	m.Status = next
	return nil
}

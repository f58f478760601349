package domain

import (
	"encoding/json"
	"time"
)

// PendingApprovalWindow is how long a pending market waits for a human
// decision before it is auto-rejected.
const PendingApprovalWindow = 7 * 24 * time.Hour

// PendingMarket is a grouped, categorized market awaiting the initial human
// approval decision.
//
// Invariant: Posted implies SlackMessageID != ""; diagnostic tooling reports
// rows violating this as anomalies.
type PendingMarket struct {
	PolyID                    string
	Question                  string
	Category                  string
	Options                   []string
	Expiry                    *int64 // unix seconds
	EventID                   string
	EventName                 string
	OptionImages              map[string]string
	OriginalMarketIDs         []string // provenance for grouped markets
	Raw                       json.RawMessage
	Posted                    bool
	SlackMessageID            string
	NeedsManualCategorization bool
	FetchedAt                 time.Time
	UpdatedAt                 time.Time
}

// IsExpired reports whether the pending market has waited past the approval
// window without a decision and should be auto-rejected.
func (p PendingMarket) IsExpired(now time.Time) bool {
	return now.Sub(p.FetchedAt) > PendingApprovalWindow
}

// IsGrouped reports whether this pending market was synthesized from several
// binary source markets.
func (p PendingMarket) IsGrouped() bool {
	return len(p.OriginalMarketIDs) > 1
}

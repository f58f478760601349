package domain

import (
	"encoding/json"
	"time"
)

// EventRef is the grouping metadata a source listing may carry: a Gamma event
// that ties several binary markets to one real-world situation.
type EventRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// SourceListing is a raw market listing from the Polymarket API, validated at
// the ingestion boundary. Fields the pipeline does not promote stay in Raw so
// the original payload can always be reconstructed.
type SourceListing struct {
	ID          string
	ConditionID string
	Question    string
	Description string
	Outcomes    []string   // outcome labels, e.g. ["Yes","No"]
	EndDate     *time.Time // nil when the API omits an end date
	Image       string
	Icon        string
	Events      []EventRef
	Closed      bool
	Archived    bool

	// Raw is the original API payload, preserved verbatim.
	Raw json.RawMessage
}

// Key returns the identifier used for dedup tracking: the condition id when
// present, otherwise the listing id.
func (l SourceListing) Key() string {
	if l.ConditionID != "" {
		return l.ConditionID
	}
	return l.ID
}

// IsBinary reports whether the listing's outcomes are exactly {Yes, No},
// order-insensitive. Only binary listings are eligible for event grouping.
func (l SourceListing) IsBinary() bool {
	if len(l.Outcomes) != 2 {
		return false
	}
	var yes, no bool
	for _, o := range l.Outcomes {
		switch o {
		case "Yes":
			yes = true
		case "No":
			no = true
		}
	}
	return yes && no
}

// Expired reports whether the listing's end date is in the past relative to
// now. Listings without an end date are never considered expired here; the
// grouper applies its own missing-field policy.
func (l SourceListing) Expired(now time.Time) bool {
	return l.EndDate != nil && l.EndDate.Before(now)
}

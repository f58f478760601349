package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIEvent is the event envelope nested inside a Gamma market response.
type APIEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
	Icon  string `json:"icon"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Outcomes arrive as a JSON-encoded string, e.g. "[\"Yes\",\"No\"]".
type APIMarket struct {
	ID          string     `json:"id"`
	ConditionID string     `json:"conditionId"`
	Question    string     `json:"question"`
	Description string     `json:"description"`
	Slug        string     `json:"slug"`
	Outcomes    string     `json:"outcomes"`
	EndDate     string     `json:"endDate"`
	Image       string     `json:"image"`
	Icon        string     `json:"icon"`
	Active      flexBool   `json:"active"`
	Closed      bool       `json:"closed"`
	Archived    bool       `json:"archived"`
	Events      []APIEvent `json:"events"`
}

// parseOutcomes decodes the JSON-string outcomes field. Markets without a
// parseable outcomes list default to Yes/No, matching how the upstream UI
// renders them.
func parseOutcomes(raw string) []string {
	if raw != "" {
		var outcomes []string
		if err := json.Unmarshal([]byte(raw), &outcomes); err == nil && len(outcomes) > 0 {
			return outcomes
		}
	}
	return []string{"Yes", "No"}
}

// ToSourceListing converts an APIMarket to the domain representation, keeping
// the original payload for archiving.
func (m *APIMarket) ToSourceListing(raw json.RawMessage) domain.SourceListing {
	l := domain.SourceListing{
		ID:          m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Description: m.Description,
		Outcomes:    parseOutcomes(m.Outcomes),
		Image:       m.Image,
		Icon:        m.Icon,
		Closed:      m.Closed,
		Archived:    m.Archived,
		Raw:         raw,
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			l.EndDate = &t
		}
	}
	for _, e := range m.Events {
		l.Events = append(l.Events, domain.EventRef{
			ID:    e.ID,
			Name:  e.Title,
			Image: e.Image,
			Icon:  e.Icon,
		})
	}
	return l
}

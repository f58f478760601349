package polymarket

import (
	"encoding/json"
	"testing"
)

func TestParseOutcomes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json string list", `["Yes","No"]`, []string{"Yes", "No"}},
		{"multi option", `["Arsenal","Liverpool","City"]`, []string{"Arsenal", "Liverpool", "City"}},
		{"empty string defaults", "", []string{"Yes", "No"}},
		{"malformed defaults", `[Yes, No`, []string{"Yes", "No"}},
		{"empty list defaults", `[]`, []string{"Yes", "No"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOutcomes(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseOutcomes(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseOutcomes(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestToSourceListing(t *testing.T) {
	raw := []byte(`{
		"id": "501234",
		"conditionId": "0xabc",
		"question": "Will Real Madrid win La Liga?",
		"outcomes": "[\"Yes\",\"No\"]",
		"endDate": "2026-05-24T00:00:00Z",
		"image": "https://img.example/banner.png",
		"icon": "https://img.example/icon.png",
		"active": "true",
		"closed": false,
		"archived": false,
		"events": [{"id": "ev9", "title": "La Liga 2025-26", "icon": "https://img.example/laliga.png"}]
	}`)

	var m APIMarket
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	l := m.ToSourceListing(raw)

	if l.Key() != "0xabc" {
		t.Errorf("Key() = %q, want condition id", l.Key())
	}
	if !l.IsBinary() {
		t.Errorf("IsBinary() = false for outcomes %v", l.Outcomes)
	}
	if l.EndDate == nil || l.EndDate.Year() != 2026 {
		t.Errorf("EndDate = %v", l.EndDate)
	}
	if len(l.Events) != 1 || l.Events[0].Name != "La Liga 2025-26" {
		t.Errorf("Events = %+v", l.Events)
	}
	if string(l.Raw) == "" {
		t.Error("Raw payload not preserved")
	}

	// Missing condition id falls back to the listing id.
	m.ConditionID = ""
	if got := m.ToSourceListing(raw).Key(); got != "501234" {
		t.Errorf("Key() fallback = %q, want 501234", got)
	}
}

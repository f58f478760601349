package openai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/alanyoungcy/apepipe/internal/categorize"
)

// entry is one classification in the model output. IDs may arrive as strings
// or numbers depending on how the model echoed them back.
type entry struct {
	ID         json.Number `json:"id"`
	Category   string      `json:"category"`
	Confidence float64     `json:"confidence"`
}

var (
	arrayRe = regexp.MustCompile(`(?s)\[.*\]`)
	pairRe  = regexp.MustCompile(`"id"\s*:\s*"?([^",}]+)"?\s*,[^{}]*?"category"\s*:\s*"([a-z]+)"(?:[^{}]*?"confidence"\s*:\s*([0-9.]+))?`)
)

// parseCategories extracts per-id classifications from model output that may
// be a clean JSON object, a bare array, JSON buried in prose, or nearly
// arbitrary text. Strategies are tried strictest first; the first one that
// yields at least one recognized id wins. Unparseable items are left absent.
func parseCategories(content string, ids []string) map[string]categorize.Scored {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	for _, parse := range []func(string, map[string]bool) map[string]categorize.Scored{
		parseDirect,
		parseArraySubstring,
		parseObjectSubstring,
		parsePairs,
		parseLines,
	} {
		if out := parse(content, known); len(out) > 0 {
			return out
		}
	}
	return nil
}

// parseDirect handles well-formed output: a bare entry array, or an object
// wrapping one under a results/markets/categories key.
func parseDirect(content string, known map[string]bool) map[string]categorize.Scored {
	var entries []entry
	if err := json.Unmarshal([]byte(content), &entries); err == nil {
		return collect(entries, known)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		return nil
	}
	for _, key := range []string{"results", "markets", "categories"} {
		if raw, ok := wrapper[key]; ok {
			if err := json.Unmarshal(raw, &entries); err == nil {
				if out := collect(entries, known); len(out) > 0 {
					return out
				}
			}
		}
	}
	return nil
}

// parseArraySubstring extracts the outermost bracketed region from prose and
// retries the array parse on it.
func parseArraySubstring(content string, known map[string]bool) map[string]categorize.Scored {
	m := arrayRe.FindString(content)
	if m == "" {
		return nil
	}
	var entries []entry
	if err := json.Unmarshal([]byte(m), &entries); err != nil {
		return nil
	}
	return collect(entries, known)
}

// parseObjectSubstring extracts the outermost braced region and parses it as
// either a wrapper object or a flat id -> category map.
func parseObjectSubstring(content string, known map[string]bool) map[string]categorize.Scored {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}
	obj := content[start : end+1]

	if out := parseDirect(obj, known); len(out) > 0 {
		return out
	}

	var flat map[string]string
	if err := json.Unmarshal([]byte(obj), &flat); err != nil {
		return nil
	}
	out := make(map[string]categorize.Scored)
	for id, cat := range flat {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if known[id] && categorize.Valid(cat) {
			out[id] = categorize.Scored{Category: cat, Confidence: 1}
		}
	}
	return out
}

// parsePairs regex-scans for id/category (and optional confidence) pairs.
func parsePairs(content string, known map[string]bool) map[string]categorize.Scored {
	out := make(map[string]categorize.Scored)
	for _, m := range pairRe.FindAllStringSubmatch(content, -1) {
		id := strings.TrimSpace(m[1])
		cat := strings.ToLower(m[2])
		if !known[id] || !categorize.Valid(cat) {
			continue
		}
		sc := categorize.Scored{Category: cat, Confidence: 1}
		if m[3] != "" {
			var conf float64
			if err := json.Unmarshal([]byte(m[3]), &conf); err == nil {
				sc.Confidence = conf
			}
		}
		out[id] = sc
	}
	return out
}

// parseLines is the last resort: any line mentioning a known id and a
// category token counts, with no confidence information.
func parseLines(content string, known map[string]bool) map[string]categorize.Scored {
	out := make(map[string]categorize.Scored)
	for _, line := range strings.Split(content, "\n") {
		// Prose only. JSON-looking lines already failed the stricter
		// strategies and matching them here would misread field names.
		if strings.ContainsAny(line, "{}") {
			continue
		}
		lower := strings.ToLower(line)
		var cat string
		for _, c := range categorize.Categories {
			if strings.Contains(lower, c) {
				cat = c
				break
			}
		}
		if cat == "" {
			continue
		}
		for id := range known {
			if strings.Contains(line, id) {
				if _, seen := out[id]; !seen {
					out[id] = categorize.Scored{Category: cat, Confidence: 0.5}
				}
			}
		}
	}
	return out
}

// collect filters parsed entries down to known ids with valid categories.
func collect(entries []entry, known map[string]bool) map[string]categorize.Scored {
	out := make(map[string]categorize.Scored)
	for _, e := range entries {
		id := e.ID.String()
		cat := strings.ToLower(strings.TrimSpace(e.Category))
		if !known[id] || !categorize.Valid(cat) {
			continue
		}
		conf := e.Confidence
		if conf <= 0 {
			conf = 1
		}
		out[id] = categorize.Scored{Category: cat, Confidence: conf}
	}
	return out
}

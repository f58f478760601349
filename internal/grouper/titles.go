package grouper

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	presidentRe  = regexp.MustCompile(`(?i)president of (.*)\?`)
	oscarRe      = regexp.MustCompile(`(?i)oscar for (.*)`)
	electionRe   = regexp.MustCompile(`(?i)win the (.*) election`)
	willPrefixRe = regexp.MustCompile(`^Will .* (be|win) `)
)

// groupTitle derives the human-readable question for a compound market from
// the group's base question and the first member's original question text.
// Known shapes get curated titles; anything else falls back to stripping the
// leading "Will X be/win" clause.
func groupTitle(baseQuestion, firstQuestion string) string {
	switch {
	case strings.Contains(baseQuestion, "goalscorer"):
		return "Top goalscorer in the EPL"
	case strings.Contains(baseQuestion, "win la liga"):
		return "La Liga Winner"
	case strings.Contains(baseQuestion, "win the premier league"):
		return "Premier League Winner"
	case strings.Contains(baseQuestion, "win serie a"):
		return "Serie A Winner"
	case strings.Contains(baseQuestion, "win bundesliga"):
		return "Bundesliga Winner"
	case strings.Contains(baseQuestion, "win ligue 1"):
		return "Ligue 1 Winner"
	case strings.Contains(baseQuestion, "president of"):
		if m := presidentRe.FindStringSubmatch(firstQuestion); m != nil {
			return "The next President of " + m[1]
		}
		return "The next President"
	case strings.Contains(baseQuestion, "largest company"):
		return "The largest company in the world by market cap on December 31"
	case strings.Contains(baseQuestion, "oscar for"):
		if m := oscarRe.FindStringSubmatch(firstQuestion); m != nil {
			return "Oscar Winner for " + strings.TrimRight(m[1], "?")
		}
		return "Oscar Winner"
	case strings.Contains(baseQuestion, "election"):
		if m := electionRe.FindStringSubmatch(firstQuestion); m != nil {
			return m[1] + " Election Winner"
		}
		return "Election Winner"
	default:
		title := willPrefixRe.ReplaceAllString(firstQuestion, "")
		title = strings.TrimRight(title, "?")
		return capitalize(title)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

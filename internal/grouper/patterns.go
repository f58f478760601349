package grouper

import (
	"regexp"
	"strings"
)

// pattern is one known event shape. The first capture group is the entity
// (team, candidate, nominee) that varies across the group's members.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns are tried in order; the first match wins. Questions matching none
// of them are never merged, even when textually similar.
var patterns = []pattern{
	{"top_goalscorer", regexp.MustCompile(`(?i)Will (.*) be the top goalscorer in the EPL\?`)},
	{"league_winner", regexp.MustCompile(`(?i)Will (.*) win (La Liga|the Premier League|Serie A|Bundesliga|Ligue 1)\?`)},
	{"president", regexp.MustCompile(`(?i)Will (.*) be (elected|the next) president of (.*)\?`)},
	{"company_market_cap", regexp.MustCompile(`(?i)Will (.*) be the largest company in the world by market cap`)},
	{"oscar_winner", regexp.MustCompile(`(?i)Will (.*) win the Oscar for (Best Picture|Best Director|Best Actor|Best Actress)`)},
	{"election_winner", regexp.MustCompile(`(?i)Will (.*) win the (.*) election\?`)},
}

// extractEntity returns the entity captured by p in question, or "" when the
// question does not match.
func extractEntity(p pattern, question string) string {
	m := p.re.FindStringSubmatch(question)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Package categorize assigns each market question one of a fixed category
// vocabulary, via an LLM batch call with a keyword fallback.
package categorize

import (
	"regexp"
	"strings"
	"sync"
)

// Categories is the fixed vocabulary. Order matters: keyword scoring breaks
// ties in favor of the earlier category.
var Categories = []string{"politics", "crypto", "sports", "business", "culture", "news", "tech"}

// DefaultCategory is assigned when nothing matches.
const DefaultCategory = "news"

var categoryKeywords = map[string][]string{
	"politics": {
		"election", "president", "vote", "congress", "senate", "house", "democrat",
		"republican", "political", "government", "trump", "biden", "prime minister",
		"parliament", "candidate", "campaign", "ballot",
	},
	"crypto": {
		"bitcoin", "ethereum", "btc", "eth", "cryptocurrency", "crypto", "token",
		"blockchain", "coin", "mining", "wallet", "defi", "nft", "dao", "exchange",
		"satoshi", "altcoin", "binance", "coinbase",
	},
	"sports": {
		"football", "soccer", "nfl", "basketball", "nba", "baseball", "mlb", "hockey",
		"nhl", "tennis", "golf", "match", "game", "tournament", "championship", "coach",
		"player", "team", "league", "olympic", "sport", "athletic", "world cup",
		"champion", "boxing", "racing", "formula", "f1", "ufc", "premier league",
	},
	"business": {
		"company", "stock", "market", "investor", "investment", "business", "finance",
		"economic", "economy", "earnings", "revenue", "profit", "loss", "ceo", "industry",
		"sector", "shareholder", "share price", "ipo", "merger", "acquisition", "quarterly",
		"fiscal", "wall street", "nasdaq", "dow jones", "s&p 500",
	},
	"culture": {
		"movie", "film", "music", "artist", "actor", "actress", "celebrity", "award",
		"oscar", "emmy", "grammy", "entertainment", "box office", "album", "tv show",
		"series", "book", "author", "director", "hollywood", "concert", "festival",
		"streaming", "netflix", "disney",
	},
	"news": {
		"breaking", "headline", "report", "update", "announcement", "development",
		"breaking news", "current events", "scandal",
	},
	"tech": {
		"technology", "software", "hardware", "app", "application", "ai", "artificial intelligence",
		"robot", "gadget", "device", "smartphone", "iphone", "android", "google", "apple",
		"microsoft", "tech company", "social media", "facebook", "instagram", "twitter",
		"amazon", "computing", "internet", "web3", "digital", "virtual reality", "vr",
		"augmented reality", "ar", "machine learning", "ml", "startup",
	},
}

var (
	keywordOnce sync.Once
	keywordRes  map[string][]*regexp.Regexp
)

// compileKeywords builds whole-word matchers once. Keywords with spaces or
// special characters are escaped so "s&p 500" matches literally.
func compileKeywords() {
	keywordRes = make(map[string][]*regexp.Regexp, len(categoryKeywords))
	for cat, words := range categoryKeywords {
		res := make([]*regexp.Regexp, 0, len(words))
		for _, w := range words {
			res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
		}
		keywordRes[cat] = res
	}
}

// Keyword categorizes a question by whole-word keyword scoring. The category
// with the most keyword hits wins; ties break toward the earlier category in
// Categories; zero hits fall back to DefaultCategory.
func Keyword(question string) string {
	keywordOnce.Do(compileKeywords)

	q := strings.ToLower(question)
	best, bestScore := DefaultCategory, 0
	for _, cat := range Categories {
		score := 0
		for _, re := range keywordRes[cat] {
			if re.MatchString(q) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	return best
}

// Valid reports whether c is in the category vocabulary.
func Valid(c string) bool {
	for _, cat := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

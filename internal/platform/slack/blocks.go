package slack

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// block is one Block Kit element. Only the layouts this pipeline posts are
// modeled.
type block struct {
	Type     string     `json:"type"`
	Text     *blockText `json:"text,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
	AltText  string     `json:"alt_text,omitempty"`
}

type blockText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func header(text string) block {
	return block{Type: "header", Text: &blockText{Type: "plain_text", Text: text, Emoji: true}}
}

func section(text string) block {
	return block{Type: "section", Text: &blockText{Type: "mrkdwn", Text: text}}
}

// categoryEmoji maps each category to its badge.
var categoryEmoji = map[string]string{
	"politics": ":ballot_box:",
	"crypto":   ":money_with_wings:",
	"sports":   ":basketball:",
	"business": ":chart_with_upwards_trend:",
	"culture":  ":performing_arts:",
	"news":     ":newspaper:",
	"tech":     ":computer:",
}

func badge(category string) string {
	if e, ok := categoryEmoji[strings.ToLower(category)]; ok {
		return e
	}
	return ":globe_with_meridians:"
}

func expiryText(expiry *int64) string {
	if expiry == nil {
		return "Unknown"
	}
	return time.Unix(*expiry, 0).UTC().Format("2006-01-02 15:04") + " UTC"
}

func optionsText(options []string) string {
	if len(options) == 0 {
		return "Yes, No"
	}
	return strings.Join(options, ", ")
}

// approvalBlocks renders the initial review message for a pending market.
func approvalBlocks(pm domain.PendingMarket) (string, []block) {
	category := pm.Category
	if category == "" || category == "all" {
		category = "news"
	}

	text := fmt.Sprintf("*New Market for Approval*  *Question:* %s", pm.Question)
	blocks := []block{
		header("New Market for Approval"),
		section(fmt.Sprintf("*Question:* %s", pm.Question)),
		section(fmt.Sprintf("%s *Category:* %s", badge(category), category)),
		section(fmt.Sprintf("*Options:* %s", optionsText(pm.Options))),
		section(fmt.Sprintf("*Expires:* %s", expiryText(pm.Expiry))),
	}
	if pm.IsGrouped() {
		blocks = append(blocks, section(fmt.Sprintf("*Event:* %s (%d markets merged)", pm.EventName, len(pm.OriginalMarketIDs))))
	}
	if pm.NeedsManualCategorization {
		blocks = append(blocks, section(":warning: Category was assigned by keyword fallback, please verify."))
	}
	blocks = append(blocks, section("React with :white_check_mark: to approve or :x: to reject"))
	return text, blocks
}

// deploymentBlocks renders the final pre-deployment review message.
func deploymentBlocks(m domain.Market) (string, []block) {
	text := fmt.Sprintf("*Market for Deployment Approval*  *Question:* %s", m.Question)
	blocks := []block{
		header("Market for Deployment Approval"),
		section(fmt.Sprintf("*Question:* %s", m.Question)),
		section(fmt.Sprintf("%s *Category:* %s", badge(m.Category), m.Category)),
		section(fmt.Sprintf("*Options:* %s", optionsText(m.Options))),
		section(fmt.Sprintf("*Expiry:* %s", expiryText(m.Expiry))),
	}
	if m.BannerURI != "" {
		blocks = append(blocks, section(fmt.Sprintf("*Banner:* %s", m.BannerURI)))
	}
	blocks = append(blocks, section("React with :white_check_mark: to approve deployment or :x: to reject"))
	return text, blocks
}

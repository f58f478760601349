// Package grouper turns batches of raw binary listings into pending markets,
// merging listings that describe the same event with different entities into
// one multi-option record.
package grouper

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// Grouper holds the grouping state for one batch. Safe for reuse across runs.
type Grouper struct {
	log *slog.Logger
	now func() time.Time
}

// New constructs a Grouper. The logger may not be nil.
func New(logger *slog.Logger) *Grouper {
	return &Grouper{
		log: logger.With(slog.String("component", "grouper")),
		now: time.Now,
	}
}

// member is one listing inside a candidate group, together with the entity
// its question pattern captured (empty when no pattern matched).
type member struct {
	listing domain.SourceListing
	entity  string
}

// Stats counts what happened to one batch.
type Stats struct {
	In      int
	Dropped int
	Merged  int // listings absorbed into compound markets
	Groups  int // compound markets produced
	Singles int // binary pass-throughs
}

// Group transforms a batch of listings into pending markets. Listings that
// are expired, closed, archived, missing a question or outcomes, or present
// in processed are dropped before grouping.
//
// Groups where any member is not exactly Yes/No are not merged; every member
// passes through individually instead, so ambiguous grouping never drops data.
func (g *Grouper) Group(listings []domain.SourceListing, processed map[string]bool) ([]domain.PendingMarket, Stats) {
	now := g.now()
	stats := Stats{In: len(listings)}

	// First pass: filter, then bucket by base question preserving first-seen
	// group order so output is deterministic.
	groups := make(map[string][]member)
	var order []string

	for _, l := range listings {
		if reason := dropReason(l, processed, now); reason != "" {
			stats.Dropped++
			g.log.Debug("listing dropped", slog.String("key", l.Key()), slog.String("reason", reason))
			continue
		}

		key := strings.ToLower(l.Question)
		var entity string
		for _, p := range patterns {
			if e := extractEntity(p, l.Question); e != "" {
				entity = e
				key = strings.ToLower(strings.Replace(l.Question, e, "ENTITY", 1))
				break
			}
		}

		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], member{listing: l, entity: entity})
	}

	// Second pass: emit compound markets for multi-member Yes/No groups,
	// binary pass-throughs for everything else.
	var out []domain.PendingMarket
	for _, key := range order {
		members := groups[key]
		if len(members) == 1 {
			out = append(out, g.single(members[0].listing, now))
			stats.Singles++
			continue
		}

		allYesNo := true
		for _, m := range members {
			if !m.listing.IsBinary() {
				allYesNo = false
				break
			}
		}
		if !allYesNo {
			g.log.Warn("group has non-binary member, passing members through individually",
				slog.String("base_question", key),
				slog.Int("members", len(members)))
			for _, m := range members {
				out = append(out, g.single(m.listing, now))
				stats.Singles++
			}
			continue
		}

		out = append(out, g.compound(key, members, now))
		stats.Groups++
		stats.Merged += len(members)
	}

	g.log.Info("batch grouped",
		slog.Int("in", stats.In),
		slog.Int("dropped", stats.Dropped),
		slog.Int("compound", stats.Groups),
		slog.Int("singles", stats.Singles))
	return out, stats
}

// dropReason returns why a listing must be excluded, or "" to keep it.
func dropReason(l domain.SourceListing, processed map[string]bool, now time.Time) string {
	switch {
	case processed[l.Key()]:
		return "already processed"
	case l.Question == "":
		return "missing question"
	case len(l.Outcomes) == 0:
		return "missing outcomes"
	case l.Archived:
		return "archived"
	case l.Closed:
		return "closed"
	case l.Expired(now):
		return "expired"
	default:
		return ""
	}
}

// single converts one listing into a binary pending market.
func (g *Grouper) single(l domain.SourceListing, now time.Time) domain.PendingMarket {
	pm := domain.PendingMarket{
		PolyID:            l.Key(),
		Question:          l.Question,
		Options:           append([]string(nil), l.Outcomes...),
		OriginalMarketIDs: []string{l.Key()},
		Raw:               l.Raw,
		FetchedAt:         now,
		UpdatedAt:         now,
	}
	if l.EndDate != nil {
		exp := l.EndDate.Unix()
		pm.Expiry = &exp
	}
	if len(l.Events) > 0 {
		pm.EventID = l.Events[0].ID
		pm.EventName = l.Events[0].Name
	}
	return pm
}

// compound synthesizes one multi-option pending market from a Yes/No group.
// The first member acts as the metadata template.
func (g *Grouper) compound(baseQuestion string, members []member, now time.Time) domain.PendingMarket {
	first := members[0].listing

	var options []string
	ids := make([]string, 0, len(members))
	images := make(map[string]string, len(members))
	for _, m := range members {
		ids = append(ids, m.listing.Key())
		if m.entity == "" {
			continue
		}
		options = append(options, m.entity)
		if img := m.listing.Icon; img != "" {
			images[m.entity] = img
		} else if m.listing.Image != "" {
			images[m.entity] = m.listing.Image
		}
	}
	if len(images) == 0 {
		images = nil
	}

	pm := domain.PendingMarket{
		PolyID:            groupID(baseQuestion),
		Question:          groupTitle(baseQuestion, first.Question),
		Options:           options,
		OptionImages:      images,
		OriginalMarketIDs: ids,
		Raw:               first.Raw,
		FetchedAt:         now,
		UpdatedAt:         now,
	}
	if first.EndDate != nil {
		exp := first.EndDate.Unix()
		pm.Expiry = &exp
	}
	if len(first.Events) > 0 {
		pm.EventID = first.Events[0].ID
		pm.EventName = first.Events[0].Name
	} else {
		pm.EventID = groupID(baseQuestion)
		pm.EventName = pm.Question
	}
	return pm
}

// groupID derives a stable synthetic id from the grouping key.
func groupID(baseQuestion string) string {
	sum := sha256.Sum256([]byte(baseQuestion))
	return "group_" + hex.EncodeToString(sum[:8])
}

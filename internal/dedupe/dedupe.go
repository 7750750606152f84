// Package dedupe collapses a batch of promotions to one representative per
// signature.
package dedupe

import (
	"slices"
	"strings"
	"unicode/utf8"

	"promowatch/internal/model"
	"promowatch/internal/signature"
)

// Stats describes what Dedupe did with a batch.
type Stats struct {
	Input      int
	Unique     int
	Duplicates int
	Invalid    int
}

// Group is the representative chosen for one signature.
type Group struct {
	Signature string
	Record    model.PromotionRecord
	Size      int
}

// Resolver picks the best record of each signature group.
type Resolver struct {
	builder *signature.Builder
}

// NewResolver returns a Resolver that groups records with b.
func NewResolver(b *signature.Builder) *Resolver {
	return &Resolver{builder: b}
}

var defaultResolver = NewResolver(signature.Default())

// Dedupe returns one record per distinct signature using the default tables.
func Dedupe(records []model.PromotionRecord) []model.PromotionRecord {
	out, _ := defaultResolver.DedupeWithStats(records)
	return out
}

// Dedupe returns one record per distinct signature. Records failing
// Validate are excluded. The output is ordered by signature but callers
// should only rely on it holding one record per signature.
func (r *Resolver) Dedupe(records []model.PromotionRecord) []model.PromotionRecord {
	out, _ := r.DedupeWithStats(records)
	return out
}

// DedupeWithStats is Dedupe plus counts of invalid and duplicate input.
func (r *Resolver) DedupeWithStats(records []model.PromotionRecord) ([]model.PromotionRecord, Stats) {
	groups, stats := r.Groups(records)
	out := make([]model.PromotionRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Record)
	}
	return out, stats
}

// Groups returns the winning record of every signature group, sorted by
// signature.
func (r *Resolver) Groups(records []model.PromotionRecord) ([]Group, Stats) {
	stats := Stats{Input: len(records)}

	type candidate struct {
		rec   model.PromotionRecord
		index int
	}
	best := make(map[string]candidate)
	sizes := make(map[string]int)

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			stats.Invalid++
			continue
		}
		sig := r.builder.Build(rec)
		sizes[sig]++
		cur, ok := best[sig]
		if !ok || better(rec, i, cur.rec, cur.index) {
			best[sig] = candidate{rec: rec, index: i}
		}
	}

	groups := make([]Group, 0, len(best))
	for sig, c := range best {
		groups = append(groups, Group{Signature: sig, Record: c.rec, Size: sizes[sig]})
	}
	slices.SortFunc(groups, func(a, b Group) int { return strings.Compare(a.Signature, b.Signature) })

	stats.Unique = len(groups)
	stats.Duplicates = stats.Input - stats.Invalid - stats.Unique
	return groups, stats
}

// better reports whether a (at input position ai) beats b (at bi).
// The order is total, so the winner does not depend on input order except
// as the very last tie-break between otherwise identical records.
func better(a model.PromotionRecord, ai int, b model.PromotionRecord, bi int) bool {
	if c := completeness(a) - completeness(b); c != 0 {
		return c > 0
	}
	if c := utf8.RuneCountInString(a.Description) - utf8.RuneCountInString(b.Description); c != 0 {
		return c > 0
	}
	if c := queryMarkers(a.URL) - queryMarkers(b.URL); c != 0 {
		return c < 0
	}
	if c := len(a.URL) - len(b.URL); c != 0 {
		return c < 0
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.HashID != b.HashID {
		return a.HashID < b.HashID
	}
	return ai < bi
}

func completeness(r model.PromotionRecord) int {
	n := 0
	for _, f := range []string{r.BonusAmount, r.Conditions, r.ValidUntil} {
		if strings.TrimSpace(f) != "" {
			n++
		}
	}
	return n
}

func queryMarkers(url string) int {
	return strings.Count(url, "?") + strings.Count(url, "&")
}

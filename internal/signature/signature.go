// Package signature derives the deduplication signature of a promotion.
//
// Two records with equal signatures are treated as the same real-world offer.
// A record with no amount facet and no condition keyword is keyed only on
// competitor, country and bonus type, so distinct offers of the same type
// from the same competitor collapse into one. That over-merge is accepted
// behaviour; strengthening it would change which promotions count as new.
package signature

import (
	"strings"

	"promowatch/internal/amount"
	"promowatch/internal/model"
	"promowatch/internal/normalize"
)

// DefaultConditionKeywords lists, in rendering order, the condition phrases
// that contribute to a signature.
var DefaultConditionKeywords = []string{
	"first deposit",
	"wagering",
	"crypto",
	"sports",
	"registration",
	"welcome bonus",
}

// Builder computes signatures. It holds only read-only tables and is safe
// for concurrent use.
type Builder struct {
	norm     *normalize.Normalizer
	keywords []string
}

var defaultBuilder = New(normalize.Default(), DefaultConditionKeywords)

// New returns a Builder with the given normalizer and condition keywords.
func New(n *normalize.Normalizer, keywords []string) *Builder {
	cp := make([]string, len(keywords))
	copy(cp, keywords)
	return &Builder{norm: n, keywords: cp}
}

// Default returns the Builder using the default tables.
func Default() *Builder {
	return defaultBuilder
}

// Build returns the signature of r with the default tables.
func Build(r model.PromotionRecord) string {
	return defaultBuilder.Build(r)
}

// Build returns competitor|country|bonus_type|amount_key|conditions with
// leading and trailing empty segments trimmed.
func (b *Builder) Build(r model.PromotionRecord) string {
	parts := []string{
		b.norm.Normalize(r.Competitor),
		strings.ToUpper(strings.TrimSpace(r.Country)),
		b.norm.Normalize(r.BonusType),
		amount.Key(r.BonusAmount, r.Description),
		b.ConditionKey(r.Conditions),
	}
	return strings.Trim(strings.Join(parts, "|"), "|")
}

// ConditionKey returns the configured keywords found in the normalized
// conditions text, joined with "+" in keyword order.
func (b *Builder) ConditionKey(conditions string) string {
	text := b.norm.Normalize(conditions)
	if text == "" {
		return ""
	}
	var found []string
	for _, kw := range b.keywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return strings.Join(found, "+")
}

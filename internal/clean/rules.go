package clean

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"promowatch/internal/model"
	"promowatch/internal/normalize"
)

// relevanceTerms mark text as a casino promotion. They are matched against
// normalized text, so Spanish and Portuguese forms reduce to these.
var relevanceTerms = []string{
	"bonus", "bono", "free spin", "spins", "giros", "tiradas", "cashback",
	"tournament", "torneo", "freeroll", "jackpot", "wagering", "reload",
	"promo", "prize", "premio",
}

// typeRules are checked in order; the first hit wins. "no deposit" comes
// before the generic deposit rule it contains.
var typeRules = []struct {
	terms []string
	typ   model.BonusType
}{
	{[]string{"no deposit", "sin deposito", "sem deposito"}, model.BonusNoDeposit},
	{[]string{"welcome bonus", "welcome"}, model.BonusWelcome},
	{[]string{"reload"}, model.BonusReload},
	{[]string{"cashback", "reembolso"}, model.BonusCashback},
	{[]string{"free spin", "giros", "tiradas"}, model.BonusFreeSpins},
	{[]string{"tournament", "torneo", "freeroll", "leaderboard"}, model.BonusTournament},
	{[]string{"jackpot"}, model.BonusJackpot},
	{[]string{"deposit"}, model.BonusDeposit},
}

var knownTypes = []model.BonusType{
	model.BonusWelcome, model.BonusDeposit, model.BonusFreeSpins, model.BonusCashback,
	model.BonusTournament, model.BonusJackpot, model.BonusReload, model.BonusNoDeposit, model.BonusOther,
}

const currencyCodes = `usdt|usd|eur|aed|brl|zar|gbp`

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d{1,3}\s*%\s*(?:up to|hasta|ate|até)\s*(?:[$€£]\s*\d[\d.,]*|\d[\d.,]*\s*(?:` + currencyCodes + `)\b)`),
	regexp.MustCompile(`[$€£]\s*\d[\d.,]*`),
	regexp.MustCompile(`(?i)\d[\d.,]*\s*(?:` + currencyCodes + `)\b`),
	regexp.MustCompile(`(?i)\b(?:` + currencyCodes + `)\s*\d[\d.,]*`),
	regexp.MustCompile(`\d{1,3}\s*%`),
	regexp.MustCompile(`(?i)\d+\s*(?:free\s*spins?|giros|tiradas)`),
}

var (
	wagerKeywordRe = regexp.MustCompile(`wager(?:ing)?|playthrough|rollover|roll-over|turnover|requisitos? de apuesta`)
	wagerMultRe    = regexp.MustCompile(`(\d{1,3})\s*(?:x\b|×|times\b|veces\b|vezes\b)(?:\s*(?:the\s+|on\s+|sobre\s+)?(deposit\s*\+\s*bonus|deposit and bonus|bonus|deposit|total))?`)
	wagerPercentRe = regexp.MustCompile(`(\d{1,3})\s*%\s*(?:of|de|do)\s*(?:the\s+)?(bonus|deposit|stake)`)
	genericMultRe  = regexp.MustCompile(`(\d{1,3})\s*(?:x\b|×)`)
)

const wagerWindow = 120

var validityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)valid\s+until\s+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(?i)expires?\s+(?:on\s+)?(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(?i)\b(\d{1,2}\s+days?)\b`),
	regexp.MustCompile(`(?i)limited\s+time`),
}

var conditionTerms = []string{
	"wagering", "playthrough", "rollover", "minimum deposit", "min deposit",
	"max bet", "game restrictions", "time limit", "terms apply",
}

const maxConditions = 3

var sentenceSplitRe = regexp.MustCompile(`[.!?;]+(?:\s+|$)`)

// Rules is a Cleaner based on keyword and pattern heuristics. Fields that
// are already set on the input are kept.
type Rules struct {
	norm *normalize.Normalizer
}

// NewRules returns a rule-based Cleaner using the default normalizer.
func NewRules() *Rules {
	return &Rules{norm: normalize.Default()}
}

// Clean implements Cleaner.
func (c *Rules) Clean(_ context.Context, r model.PromotionRecord) (model.PromotionRecord, bool, error) {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	if r.Title == "" {
		return r, false, fmt.Errorf("%w: title is empty", model.ErrInvalidRecord)
	}

	text := r.Title
	if r.Description != "" {
		text += ". " + r.Description
	}
	normalized := c.norm.Normalize(text)
	if !Relevant(normalized) {
		return r, false, nil
	}

	r.BonusType = string(c.bonusType(r.BonusType, normalized))
	if strings.TrimSpace(r.BonusAmount) == "" {
		r.BonusAmount = BonusAmount(text)
	}
	if strings.TrimSpace(r.Wagering) == "" {
		r.Wagering = Wagering(text)
	}
	if strings.TrimSpace(r.ValidUntil) == "" {
		r.ValidUntil = Validity(text)
	}
	if strings.TrimSpace(r.Conditions) == "" {
		r.Conditions = Conditions(r.Description)
	}
	r.HashID = model.ContentHash(r.Competitor, r.Title, r.BonusAmount, r.BonusType)
	return r, true, nil
}

// Relevant reports whether normalized text mentions a casino promotion.
func Relevant(normalized string) bool {
	for _, term := range relevanceTerms {
		if strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}

// bonusType keeps a raw type that already names a known category and
// otherwise classifies the normalized text.
func (c *Rules) bonusType(raw, normalized string) model.BonusType {
	if raw = strings.TrimSpace(raw); raw != "" {
		for _, t := range knownTypes {
			if strings.EqualFold(raw, string(t)) {
				return t
			}
		}
		normalized = c.norm.Normalize(raw) + " " + normalized
	}
	return ClassifyType(normalized)
}

// ClassifyType maps normalized text to a bonus type.
func ClassifyType(normalized string) model.BonusType {
	for _, rule := range typeRules {
		for _, term := range rule.terms {
			if strings.Contains(normalized, term) {
				return rule.typ
			}
		}
	}
	return model.BonusOther
}

// BonusAmount returns the first amount-like phrase in text, preferring
// "100% up to $500" over its parts.
func BonusAmount(text string) string {
	for _, re := range amountPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimRight(strings.Join(strings.Fields(m), " "), ".,")
		}
	}
	return ""
}

// Wagering extracts a wagering requirement rendered as "35x (bonus)",
// "40x (deposit+bonus)" or "50% (deposit)". A multiplier near a wagering
// keyword is preferred; a bare "35x" anywhere is the fallback with an
// unknown scope.
func Wagering(text string) string {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	lower = strings.NewReplacer("–", "-", "—", "-").Replace(lower)

	for _, loc := range wagerKeywordRe.FindAllStringIndex(lower, -1) {
		after := lower[loc[1]:min(len(lower), loc[1]+wagerWindow)]
		before := lower[max(0, loc[0]-wagerWindow):loc[0]]
		for _, window := range []string{after, before} {
			if m := wagerMultRe.FindStringSubmatch(window); m != nil {
				return m[1] + "x (" + scope(m[2]) + ")"
			}
			if m := wagerPercentRe.FindStringSubmatch(window); m != nil {
				return m[1] + "% (" + scope(m[2]) + ")"
			}
		}
	}

	if m := genericMultRe.FindStringSubmatch(lower); m != nil {
		return m[1] + "x (unknown)"
	}
	return ""
}

func scope(raw string) string {
	switch {
	case raw == "":
		return "unknown"
	case strings.Contains(raw, "+"), strings.Contains(raw, " and "):
		return "deposit+bonus"
	case strings.Contains(raw, "deposit"):
		return "deposit"
	case strings.Contains(raw, "bonus"):
		return "bonus"
	}
	return raw
}

// Validity extracts an expiry date or period.
func Validity(text string) string {
	for _, re := range validityPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1]
		}
		return m[0]
	}
	return ""
}

// Conditions returns up to three sentences of text that state terms,
// joined with "; ".
func Conditions(text string) string {
	if text == "" {
		return ""
	}
	sentences := sentenceSplitRe.Split(text, -1)

	var picked []string
	used := make(map[int]bool)
	for _, term := range conditionTerms {
		for i, s := range sentences {
			if used[i] || !strings.Contains(strings.ToLower(s), term) {
				continue
			}
			used[i] = true
			picked = append(picked, strings.TrimSpace(s))
			break
		}
		if len(picked) == maxConditions {
			break
		}
	}
	return strings.Join(picked, "; ")
}

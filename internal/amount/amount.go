// Package amount extracts an order-independent key of the numeric facets of
// a promotion: percentages, currency amounts and free-spin counts.
package amount

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"promowatch/internal/normalize"
)

// currencyCodes maps recognised currency tokens to their canonical code.
// Tokens not listed here pass through lower-cased.
var currencyCodes = map[string]string{
	"€": "eur",
	"$": "usd",
	"£": "gbp",
}

const (
	codes  = `usdt|usd|eur|aed|zar|gbp|brl`
	number = `(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`
)

// usdt precedes usd in codes so the longer token wins.
var (
	percentRe  = regexp.MustCompile(`(\d+)\s*%`)
	numberRe   = regexp.MustCompile(number)
	prefixRe   = regexp.MustCompile(`(€|\$|£|\b(?:` + codes + `))\s*$`)
	suffixRe   = regexp.MustCompile(`^\s*(€|\$|£|(?:` + codes + `)\b)`)
	spinsRe    = regexp.MustCompile(`(\d+)\s*(?:free spins|spins|giros|tiradas)`)
	fractionRe = regexp.MustCompile(`[.,]\d{1,2}$`)
)

// Key returns the amount key for the given amount and description text, for
// example "pct:100|amt:500usd|spins:50". It returns "" when nothing numeric
// was recognised. The key does not depend on the order of mentions, on the
// thousands separator style or on whether a currency symbol precedes or
// follows the number.
func Key(amountText, descriptionText string) string {
	text := normalize.Fold(amountText + " " + descriptionText)

	var facets []string
	if pct := percentages(text); len(pct) > 0 {
		facets = append(facets, "pct:"+strings.Join(pct, "+"))
	}
	if amt := amounts(text); len(amt) > 0 {
		facets = append(facets, "amt:"+strings.Join(amt, "+"))
	}
	if spins := spinCounts(text); len(spins) > 0 {
		facets = append(facets, "spins:"+strings.Join(spins, "+"))
	}
	return strings.Join(facets, "|")
}

func percentages(text string) []string {
	var out []string
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 999 {
			continue
		}
		out = append(out, strconv.Itoa(n))
	}
	return sortedSet(out)
}

// amounts pairs each number with the currency token touching it, walking
// the text left to right. The token right before a number wins over the one
// right after it, and every token is used at most once, so "€50 €100" keeps
// both amounts while "100 usd 50 free spins" does not yield a spurious 50usd.
func amounts(text string) []string {
	var out []string
	used := make(map[int]bool) // start offsets of consumed tokens
	for _, m := range numberRe.FindAllStringIndex(text, -1) {
		v, ok := parseNumber(text[m[0]:m[1]])
		if !ok {
			continue
		}
		if t := prefixRe.FindStringSubmatchIndex(text[:m[0]]); t != nil && !used[t[2]] {
			used[t[2]] = true
			out = append(out, strconv.Itoa(v)+currencyCode(text[t[2]:t[3]]))
			continue
		}
		if t := suffixRe.FindStringSubmatchIndex(text[m[1]:]); t != nil && !used[m[1]+t[2]] {
			used[m[1]+t[2]] = true
			out = append(out, strconv.Itoa(v)+currencyCode(text[m[1]+t[2]:m[1]+t[3]]))
		}
	}
	return sortedSet(out)
}

func spinCounts(text string) []string {
	var out []string
	for _, m := range spinsRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, strconv.Itoa(n))
	}
	return sortedSet(out)
}

// parseNumber drops a trailing one or two digit fraction and strips
// thousands separators, so "1,000", "1.000" and "1000.50" all give 1000.
func parseNumber(s string) (int, bool) {
	s = fractionRe.ReplaceAllString(s, "")
	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func currencyCode(token string) string {
	if code, ok := currencyCodes[token]; ok {
		return code
	}
	return strings.ToLower(token)
}

func sortedSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	slices.Sort(values)
	return slices.Compact(values)
}

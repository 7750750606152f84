// Package normalize canonicalizes free-text promotion fields for comparison.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Synonym rewrites one phrase into its canonical English form.
// Both sides are lower-case and accent-free.
type Synonym struct {
	From string
	To   string
}

// DefaultSynonyms is the ordered substitution table applied by Text.
// Longer, more specific phrases come before the words they contain.
var DefaultSynonyms = []Synonym{
	{From: "first time deposit", To: "first deposit"},
	{From: "1st deposit", To: "first deposit"},
	{From: "primer deposito", To: "first deposit"},
	{From: "primeiro deposito", To: "first deposit"},
	{From: "bono de bienvenida", To: "welcome bonus"},
	{From: "bono bienvenida", To: "welcome bonus"},
	{From: "bonus de bienvenida", To: "welcome bonus"},
	{From: "bonus de boas-vindas", To: "welcome bonus"},
	{From: "bonus de boas vindas", To: "welcome bonus"},
	{From: "apuestas deportivas cripto", To: "crypto sports"},
	{From: "deportes cripto", To: "crypto sports"},
	{From: "esportes cripto", To: "crypto sports"},
	{From: "cripto deportes", To: "crypto sports"},
	{From: "requisitos de apuesta", To: "wagering"},
	{From: "requisito de apuesta", To: "wagering"},
	{From: "rollover", To: "wagering"},
	{From: "playthrough", To: "wagering"},
	{From: "registro", To: "registration"},
	{From: "cripto", To: "crypto"},
}

// Normalizer applies a fixed synonym table. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	synonyms []Synonym
}

var defaultNormalizer = New(DefaultSynonyms)

// New returns a Normalizer using a private copy of synonyms.
func New(synonyms []Synonym) *Normalizer {
	cp := make([]Synonym, len(synonyms))
	copy(cp, synonyms)
	return &Normalizer{synonyms: cp}
}

// Default returns the Normalizer built from DefaultSynonyms.
func Default() *Normalizer {
	return defaultNormalizer
}

// Text normalizes s with the default synonym table.
func Text(s string) string {
	return defaultNormalizer.Normalize(s)
}

// Normalize lower-cases s, removes diacritics, rewrites synonyms, drops
// characters outside [a-z0-9%$€.,- ] and collapses whitespace. Runs of
// whitespace are already single spaces when synonyms are matched, so a line
// break inside "first time deposit" does not hide the phrase.
// It never fails; empty input yields "".
func (n *Normalizer) Normalize(s string) string {
	s = collapse(Fold(s))
	if s == "" {
		return ""
	}
	for _, syn := range n.synonyms {
		s = strings.ReplaceAll(s, syn.From, syn.To)
	}
	return collapse(strings.Map(keep, s))
}

// Fold lower-cases s and strips combining diacritical marks, so that
// "Depósito" and "deposito" compare equal.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// Chains keep internal state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func keep(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	case r == '%', r == '$', r == '€', r == '.', r == ',', r == '-', r == ' ':
		return r
	}
	return -1
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

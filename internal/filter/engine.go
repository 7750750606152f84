// Package filter decides which ingested promotions of a competitor are kept.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"promowatch/internal/model"
	"promowatch/internal/normalize"
)

// Item is the part of an ingested promotion that rules match against.
type Item struct {
	Title       string
	Description string
}

type compiledRule struct {
	rule model.Rule
	term string
	re   *regexp.Regexp
}

// Matcher is a compiled rule set. It is safe for concurrent use.
// Include rules use OR logic (at least one must match).
// Exclude rules veto (none may match).
// An empty rule set passes everything.
type Matcher struct {
	rules []compiledRule
}

// Compile validates and compiles rules. Terms match case- and
// accent-insensitively. Patterns are case-insensitive and run against the
// accent-free text, so they should be written without accents.
func Compile(rules []model.Rule) (*Matcher, error) {
	m := &Matcher{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		c := compiledRule{rule: r}
		switch r.Kind {
		case model.RuleInclude, model.RuleExclude:
			c.term = normalize.Fold(r.Value)
			if strings.TrimSpace(c.term) == "" {
				return nil, fmt.Errorf("rule %d: empty %s term", i, r.Kind)
			}
		case model.RuleIncludeRe, model.RuleExcludeRe:
			re, err := compileRegex(r.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			c.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		switch r.Scope {
		case "", model.ScopeAll, model.ScopeTitle, model.ScopeContent:
		default:
			return nil, fmt.Errorf("rule %d: unknown scope %q", i, r.Scope)
		}
		m.rules = append(m.rules, c)
	}
	return m, nil
}

// Match reports whether item passes the rule set.
func (m *Matcher) Match(item Item) bool {
	if m == nil || len(m.rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, c := range m.rules {
		switch c.rule.Kind {
		case model.RuleInclude, model.RuleIncludeRe:
			hasIncludes = true
			if c.matches(item) {
				anyIncludeMatched = true
			}
		case model.RuleExclude, model.RuleExcludeRe:
			if c.matches(item) {
				return false
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (c compiledRule) matches(item Item) bool {
	text := textForScope(item, c.rule.Scope)
	if c.re != nil {
		return c.re.MatchString(text)
	}
	return strings.Contains(text, c.term)
}

func textForScope(item Item, scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return normalize.Fold(item.Title)
	case model.ScopeContent:
		return normalize.Fold(item.Description)
	default:
		return normalize.Fold(item.Title + " " + item.Description)
	}
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"promowatch/internal/filter"
	"promowatch/internal/model"
)

// RuleSpec is a relevance rule as written in the catalogue.
type RuleSpec struct {
	Kind  string `yaml:"kind"`
	Scope string `yaml:"scope"`
	Value string `yaml:"value"`
}

// Competitor is one monitored operator in a country.
type Competitor struct {
	Name  string     `yaml:"name"`
	Feed  string     `yaml:"feed"`
	Rules []RuleSpec `yaml:"rules"`
}

// Country lists the competitors monitored in one market.
type Country struct {
	Competitors []Competitor `yaml:"competitors"`
}

// Sources is the parsed source catalogue.
type Sources struct {
	Countries map[string]Country `yaml:"countries"`
}

// LoadSources reads and validates a sources.yaml catalogue. Country codes
// are upper-cased and every rule set must compile.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources %s: %w", path, err)
	}
	return ParseSources(data)
}

// ParseSources parses and validates catalogue YAML.
func ParseSources(data []byte) (*Sources, error) {
	var raw Sources
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing sources: %w", err)
	}
	if len(raw.Countries) == 0 {
		return nil, fmt.Errorf("sources define no countries")
	}

	s := &Sources{Countries: make(map[string]Country, len(raw.Countries))}
	for code, c := range raw.Countries {
		cc := strings.ToUpper(strings.TrimSpace(code))
		if cc == "" {
			return nil, fmt.Errorf("empty country code")
		}
		if _, dup := s.Countries[cc]; dup {
			return nil, fmt.Errorf("country %q defined twice", cc)
		}
		seen := make(map[string]bool)
		for i, comp := range c.Competitors {
			if strings.TrimSpace(comp.Name) == "" {
				return nil, fmt.Errorf("country %s competitor %d: name is required", cc, i)
			}
			if strings.TrimSpace(comp.Feed) == "" {
				return nil, fmt.Errorf("country %s competitor %q: feed is required", cc, comp.Name)
			}
			if seen[comp.Name] {
				return nil, fmt.Errorf("country %s: competitor %q listed twice", cc, comp.Name)
			}
			seen[comp.Name] = true
			if _, err := filter.Compile(comp.ModelRules()); err != nil {
				return nil, fmt.Errorf("country %s competitor %q: %w", cc, comp.Name, err)
			}
		}
		s.Countries[cc] = c
	}
	return s, nil
}

// ModelRules converts the catalogue rules. An empty scope means all.
func (c Competitor) ModelRules() []model.Rule {
	rules := make([]model.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		scope := model.RuleScope(strings.ToLower(r.Scope))
		if scope == "" {
			scope = model.ScopeAll
		}
		rules = append(rules, model.Rule{
			Kind:  model.RuleKind(strings.ToLower(r.Kind)),
			Scope: scope,
			Value: r.Value,
		})
	}
	return rules
}

// CountryCodes returns the configured country codes in sorted order.
func (s *Sources) CountryCodes() []string {
	codes := make([]string, 0, len(s.Countries))
	for cc := range s.Countries {
		codes = append(codes, cc)
	}
	sort.Strings(codes)
	return codes
}

// Country returns the competitors of a country code, case-insensitively.
func (s *Sources) Country(code string) (Country, bool) {
	c, ok := s.Countries[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

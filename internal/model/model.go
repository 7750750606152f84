// Package model defines the domain types used across the application.
package model

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors shared by the store, the comparator and their callers.
var (
	ErrInvalidRecord      = errors.New("invalid promotion record")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
)

// DateLayout is the day-level layout used for as-of dates and scrape days.
const DateLayout = "2006-01-02"

// BonusType is the coarse category of a promotion.
type BonusType string

// Known bonus types. Anything else is reported as BonusOther.
const (
	BonusWelcome    BonusType = "Welcome Bonus"
	BonusDeposit    BonusType = "Deposit Bonus"
	BonusFreeSpins  BonusType = "Free Spins"
	BonusCashback   BonusType = "Cashback"
	BonusTournament BonusType = "Tournament"
	BonusJackpot    BonusType = "Jackpot"
	BonusReload     BonusType = "Reload Bonus"
	BonusNoDeposit  BonusType = "No Deposit Bonus"
	BonusOther      BonusType = "Other"
)

// PromotionRecord is a single scraped or cleaned competitor offer.
type PromotionRecord struct {
	ID          int64     `json:"-"`
	Competitor  string    `json:"competitor"`
	Country     string    `json:"country"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BonusAmount string    `json:"bonus_amount"`
	BonusType   string    `json:"bonus_type"`
	Conditions  string    `json:"conditions"`
	Wagering    string    `json:"wagering"`
	ValidUntil  string    `json:"valid_until"`
	URL         string    `json:"url"`
	ScrapedAt   time.Time `json:"scraped_at"`
	HashID      string    `json:"hash_id"`
}

// Validate reports whether the identity fields of the record are present.
func (r PromotionRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.Competitor) == "":
		return fmt.Errorf("%w: competitor is empty", ErrInvalidRecord)
	case strings.TrimSpace(r.Country) == "":
		return fmt.Errorf("%w: country is empty", ErrInvalidRecord)
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is empty", ErrInvalidRecord)
	}
	return nil
}

// ScrapedDay returns the UTC calendar day the record was scraped on.
func (r PromotionRecord) ScrapedDay() string {
	return r.ScrapedAt.UTC().Format(DateLayout)
}

// ContentHash returns the exact-match identifier of a raw record.
// It hashes competitor, title, bonus amount and bonus type, so it is stable
// across process restarts and releases.
func ContentHash(competitor, title, bonusAmount, bonusType string) string {
	h := sha256.Sum256([]byte(competitor + "|" + title + "|" + bonusAmount + "|" + bonusType))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// CompareMode selects how new promotions are detected.
type CompareMode string

// Supported comparison modes.
const (
	ModeSemantic CompareMode = "semantic"
	ModeHash     CompareMode = "hash"
)

// ParseCompareMode converts a string into a CompareMode.
func ParseCompareMode(s string) (CompareMode, error) {
	switch CompareMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSemantic:
		return ModeSemantic, nil
	case ModeHash:
		return ModeHash, nil
	}
	return "", fmt.Errorf("unknown compare mode %q", s)
}

// ComparisonResult is the output of one comparison run.
// NewPromotions and RemovedPromotions are never nil, so an empty run
// serializes as [] rather than null.
type ComparisonResult struct {
	RunID               string            `json:"run_id"`
	Mode                CompareMode       `json:"mode"`
	ComparisonDate      string            `json:"comparison_date"`
	Country             string            `json:"country"`
	NewPromotions       []PromotionRecord `json:"new_promotions"`
	RemovedPromotions   []PromotionRecord `json:"removed_promotions"`
	NewCount            int               `json:"new_promotions_count"`
	RemovedCount        int               `json:"removed_promotions_count"`
	TotalCurrent        int               `json:"total_current"`
	TotalPrevious       int               `json:"total_previous"`
	ExcludedInvalid     int               `json:"excluded_invalid"`
	CompetitorsAnalyzed []string          `json:"competitors_analyzed"`
}

// ComparisonSummary is the persisted, append-only audit row of a comparison run.
type ComparisonSummary struct {
	ID                  int64       `json:"id"`
	RunID               string      `json:"run_id"`
	Mode                CompareMode `json:"mode"`
	ComparisonDate      string      `json:"comparison_date"`
	Country             string      `json:"country"`
	NewCount            int         `json:"new_promotions_count"`
	RemovedCount        int         `json:"removed_promotions_count"`
	TotalCurrent        int         `json:"total_current"`
	TotalPrevious       int         `json:"total_previous"`
	ExcludedInvalid     int         `json:"excluded_invalid"`
	CompetitorsAnalyzed []string    `json:"competitors_analyzed"`
	CreatedAt           time.Time   `json:"created_at"`
}

// Stats aggregates the cleaned promotions stored for a country.
type Stats struct {
	Country        string         `json:"country"`
	Total          int            `json:"total_promotions"`
	ByCompetitor   map[string]int `json:"by_competitor"`
	ByType         map[string]int `json:"by_type"`
	LatestScraping *time.Time     `json:"latest_scraping,omitempty"`
}

// RuleKind defines the type of a relevance rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// RuleScope defines which part of an ingested item a rule matches against.
type RuleScope string

// Supported rule scopes.
const (
	ScopeTitle   RuleScope = "title"
	ScopeContent RuleScope = "content"
	ScopeAll     RuleScope = "all"
)

// Rule is a single relevance rule attached to a competitor source.
type Rule struct {
	Kind  RuleKind
	Scope RuleScope
	Value string
}

// Summary returns the audit row describing r.
func (r *ComparisonResult) Summary() ComparisonSummary {
	return ComparisonSummary{
		RunID:               r.RunID,
		Mode:                r.Mode,
		ComparisonDate:      r.ComparisonDate,
		Country:             r.Country,
		NewCount:            r.NewCount,
		RemovedCount:        r.RemovedCount,
		TotalCurrent:        r.TotalCurrent,
		TotalPrevious:       r.TotalPrevious,
		ExcludedInvalid:     r.ExcludedInvalid,
		CompetitorsAnalyzed: r.CompetitorsAnalyzed,
	}
}

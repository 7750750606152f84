// Package compare detects new and removed promotions by comparing the
// records scraped on an as-of day against everything stored before it.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"promowatch/internal/dedupe"
	"promowatch/internal/model"
	"promowatch/internal/signature"
)

// RecordStore is the read side of the cleaned record history plus the
// append-only comparison log.
type RecordStore interface {
	CleanRecordsOn(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error)
	CleanRecordsBefore(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error)
	SaveComparison(ctx context.Context, s *model.ComparisonSummary) error
}

// Comparator runs comparisons. It keeps no state between calls.
type Comparator struct {
	store    RecordStore
	builder  *signature.Builder
	resolver *dedupe.Resolver
	mode     model.CompareMode
	log      *slog.Logger
	newRunID func() string
}

// New creates a semantic Comparator using the default signature tables.
func New(store RecordStore, log *slog.Logger) *Comparator {
	return NewWithBuilder(store, signature.Default(), log)
}

// NewWithBuilder creates a Comparator with a custom signature builder.
func NewWithBuilder(store RecordStore, b *signature.Builder, log *slog.Logger) *Comparator {
	return &Comparator{
		store:    store,
		builder:  b,
		resolver: dedupe.NewResolver(b),
		mode:     model.ModeSemantic,
		log:      log,
		newRunID: uuid.NewString,
	}
}

// SetMode overrides the default semantic mode.
func (c *Comparator) SetMode(m model.CompareMode) {
	c.mode = m
}

// Mode returns the mode used by Compare.
func (c *Comparator) Mode() model.CompareMode {
	return c.mode
}

// Signature returns the signature r is grouped under in semantic mode.
func (c *Comparator) Signature(r model.PromotionRecord) string {
	return c.builder.Build(r)
}

// Compare runs a comparison for country as of the given day in the
// configured mode and appends its summary to the store.
func (c *Comparator) Compare(ctx context.Context, country string, asOf time.Time) (*model.ComparisonResult, error) {
	return c.CompareWith(ctx, country, asOf, c.mode)
}

// CompareWith is Compare with an explicit mode.
func (c *Comparator) CompareWith(ctx context.Context, country string, asOf time.Time, mode model.CompareMode) (*model.ComparisonResult, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, errors.New("country is required")
	}
	day := asOf.UTC().Truncate(24 * time.Hour)

	current, err := c.store.CleanRecordsOn(ctx, country, day)
	if err != nil {
		return nil, storageErr("fetch current records", err)
	}
	previous, err := c.store.CleanRecordsBefore(ctx, country, day)
	if err != nil {
		return nil, storageErr("fetch previous records", err)
	}

	res := &model.ComparisonResult{
		RunID:          c.newRunID(),
		Mode:           mode,
		ComparisonDate: day.Format(model.DateLayout),
		Country:        country,
		TotalPrevious:  len(previous),
	}

	switch mode {
	case model.ModeSemantic:
		c.semantic(res, current, previous)
	case model.ModeHash:
		hashDiff(res, current, previous)
	default:
		return nil, fmt.Errorf("unknown compare mode %q", mode)
	}
	res.NewCount = len(res.NewPromotions)
	res.RemovedCount = len(res.RemovedPromotions)

	if res.ExcludedInvalid > 0 {
		c.log.Warn("excluded invalid records", "country", country, "as_of", res.ComparisonDate, "count", res.ExcludedInvalid)
	}

	summary := res.Summary()
	if err := c.store.SaveComparison(ctx, &summary); err != nil {
		return nil, storageErr("save comparison", err)
	}

	c.log.Info("comparison complete",
		"run_id", res.RunID,
		"country", country,
		"as_of", res.ComparisonDate,
		"mode", mode,
		"new_count", res.NewCount,
		"removed_count", res.RemovedCount,
		"total_current", res.TotalCurrent,
		"total_previous", res.TotalPrevious,
	)
	return res, nil
}

// semantic deduplicates today's batch and reports every representative
// whose signature never appeared before. Removed promotions are not
// derived in this mode.
func (c *Comparator) semantic(res *model.ComparisonResult, current, previous []model.PromotionRecord) {
	groups, stats := c.resolver.Groups(current)

	seen := make(map[string]struct{}, len(previous))
	for _, r := range previous {
		seen[c.builder.Build(r)] = struct{}{}
	}

	res.NewPromotions = make([]model.PromotionRecord, 0)
	res.RemovedPromotions = make([]model.PromotionRecord, 0)
	unique := make([]model.PromotionRecord, 0, len(groups))
	for _, g := range groups {
		unique = append(unique, g.Record)
		if _, ok := seen[g.Signature]; !ok {
			res.NewPromotions = append(res.NewPromotions, g.Record)
		}
	}

	res.TotalCurrent = len(unique)
	res.ExcludedInvalid = stats.Invalid
	res.CompetitorsAnalyzed = competitors(unique)
}

// hashDiff compares exact content hashes. New promotions are today's hashes
// absent from the whole history; removed ones are hashes of the most recent
// earlier scrape day that are absent today.
func hashDiff(res *model.ComparisonResult, current, previous []model.PromotionRecord) {
	res.NewPromotions = make([]model.PromotionRecord, 0)
	res.RemovedPromotions = make([]model.PromotionRecord, 0)

	today := make(map[string]struct{})
	unique := make([]model.PromotionRecord, 0, len(current))
	for _, r := range current {
		if err := r.Validate(); err != nil {
			res.ExcludedInvalid++
			continue
		}
		h := hashOf(r)
		if _, ok := today[h]; ok {
			continue
		}
		today[h] = struct{}{}
		unique = append(unique, r)
	}

	history := make(map[string]struct{}, len(previous))
	lastDay := ""
	for _, r := range previous {
		history[hashOf(r)] = struct{}{}
		if d := r.ScrapedDay(); d > lastDay {
			lastDay = d
		}
	}

	for _, r := range unique {
		if _, ok := history[hashOf(r)]; !ok {
			res.NewPromotions = append(res.NewPromotions, r)
		}
	}

	removed := make(map[string]struct{})
	for _, r := range previous {
		if r.ScrapedDay() != lastDay {
			continue
		}
		h := hashOf(r)
		if _, ok := today[h]; ok {
			continue
		}
		if _, ok := removed[h]; ok {
			continue
		}
		removed[h] = struct{}{}
		res.RemovedPromotions = append(res.RemovedPromotions, r)
	}

	res.TotalCurrent = len(unique)
	res.CompetitorsAnalyzed = competitors(unique)
}

func hashOf(r model.PromotionRecord) string {
	if r.HashID != "" {
		return r.HashID
	}
	return model.ContentHash(r.Competitor, r.Title, r.BonusAmount, r.BonusType)
}

func competitors(records []model.PromotionRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Competitor)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func storageErr(op string, err error) error {
	if errors.Is(err, model.ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorageUnavailable, err)
}

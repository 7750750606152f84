// Package scheduler runs the daily promotion pipeline for every configured
// country: ingest, clean, compare, export and notify.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"promowatch/internal/bot"
	"promowatch/internal/clean"
	"promowatch/internal/compare"
	"promowatch/internal/config"
	"promowatch/internal/export"
	"promowatch/internal/fetcher"
	"promowatch/internal/filter"
	"promowatch/internal/model"
	"promowatch/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler periodically scrapes competitor feeds and compares each
// country's promotions with its history.
type Scheduler struct {
	store      storage.Storage
	sources    map[string][]fetcher.Source
	fetcher    *fetcher.Fetcher
	cleaner    clean.Cleaner
	comparator *compare.Comparator
	exporter   *export.Writer
	sender     Sender
	chatID     int64
	log        *slog.Logger
	tick       time.Duration
	now        func() time.Time

	mu       sync.Mutex
	notified map[dayKey]map[string]bool // signatures already sent
	exported map[dayKey]int             // new count of the last export
}

type dayKey struct {
	country string
	day     string
}

// New creates a Scheduler with the default HTTP client, the rule-based
// cleaner and a semantic comparator. sender may be nil.
func New(store storage.Storage, sources map[string][]fetcher.Source, sender Sender, chatID int64, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, fetcher.New(http.DefaultClient), sources, sender, chatID, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store storage.Storage, f *fetcher.Fetcher, sources map[string][]fetcher.Source, sender Sender, chatID int64, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		sources:    sources,
		fetcher:    f,
		cleaner:    clean.NewRules(),
		comparator: compare.New(store, log),
		sender:     sender,
		chatID:     chatID,
		log:        log,
		tick:       time.Hour,
		now:        time.Now,
		notified:   make(map[dayKey]map[string]bool),
		exported:   make(map[dayKey]int),
	}
}

// SetTickInterval overrides the default 1-hour check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetCleaner replaces the rule-based cleaner.
func (s *Scheduler) SetCleaner(c clean.Cleaner) {
	s.cleaner = c
}

// SetComparator replaces the default comparator.
func (s *Scheduler) SetComparator(c *compare.Comparator) {
	s.comparator = c
}

// SetExporter enables file exports after each comparison.
func (s *Scheduler) SetExporter(w *export.Writer) {
	s.exporter = w
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// RunOnce processes every country once as of asOf and returns the first
// error encountered. Countries after a failing one are still processed.
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) error {
	var firstErr error
	for _, cc := range s.countries() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.ProcessCountry(ctx, cc, asOf); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("process %s: %w", cc, err)
		}
	}
	return firstErr
}

func (s *Scheduler) checkAll(ctx context.Context) {
	now := s.now()
	for _, cc := range s.countries() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.ProcessCountry(ctx, cc, now); err != nil {
			s.log.Error("process country", "country", cc, "error", err)
		}
	}
}

// ProcessCountry scrapes every source of country, stores the raw and
// cleaned records, runs a comparison as of asOf and reports it. Scraped
// records carry the current time whatever asOf is, since a feed only shows
// today's promotions. A failing source is logged and skipped.
func (s *Scheduler) ProcessCountry(ctx context.Context, country string, asOf time.Time) (*model.ComparisonResult, error) {
	s.log.Debug("processing country", "country", country)

	scrapedAt := s.now()
	var raw []model.PromotionRecord
	for _, src := range s.sources[country] {
		records, err := s.fetcher.Scrape(ctx, src, scrapedAt)
		if err != nil {
			s.log.Error("scrape source", "country", country, "competitor", src.Competitor, "url", src.FeedURL, "error", err)
			continue
		}
		s.log.Debug("scraped source", "country", country, "competitor", src.Competitor, "records", len(records), "rules", src.Matcher.Len())
		raw = append(raw, records...)
	}

	inserted, err := s.store.InsertRaw(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("store raw records: %w", err)
	}

	cleaned, stats, err := clean.CleanBatch(ctx, s.cleaner, raw, s.log)
	if err != nil {
		return nil, fmt.Errorf("clean records: %w", err)
	}
	insertedClean, err := s.store.InsertClean(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("store clean records: %w", err)
	}
	s.log.Info("ingested promotions",
		"country", country,
		"scraped", len(raw),
		"raw_new", inserted,
		"kept", stats.Kept,
		"irrelevant", stats.Irrelevant,
		"failed", stats.Failed,
		"clean_new", insertedClean,
	)

	res, err := s.comparator.Compare(ctx, country, asOf)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}

	key := dayKey{country: res.Country, day: res.ComparisonDate}
	if s.shouldExport(key, res.NewCount) {
		s.export(res)
	}
	s.notify(key, res)
	return res, nil
}

func (s *Scheduler) countries() []string {
	codes := make([]string, 0, len(s.sources))
	for cc := range s.sources {
		codes = append(codes, cc)
	}
	sort.Strings(codes)
	return codes
}

// shouldExport reports whether res differs from the last export of the
// same country and day, so hourly ticks do not repeat identical files.
func (s *Scheduler) shouldExport(key dayKey, newCount int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.exported[key]
	if ok && last == newCount {
		return false
	}
	if !ok {
		s.forgetOtherDays(key)
	}
	s.exported[key] = newCount
	return true
}

func (s *Scheduler) export(res *model.ComparisonResult) {
	if s.exporter == nil {
		return
	}
	files, err := s.exporter.Export(res)
	if err != nil {
		s.log.Error("export comparison", "country", res.Country, "run_id", res.RunID, "error", err)
		return
	}
	s.log.Info("exported comparison", "country", res.Country, "csv", files.CSV, "json", files.JSON)
}

// notify sends each new promotion not yet announced today, followed by a
// summary when anything was sent.
func (s *Scheduler) notify(key dayKey, res *model.ComparisonResult) {
	if s.sender == nil || s.chatID == 0 {
		return
	}

	s.mu.Lock()
	seen, ok := s.notified[key]
	if !ok {
		seen = make(map[string]bool)
		s.notified[key] = seen
		s.forgetOtherDays(key)
	}
	var fresh []model.PromotionRecord
	for _, p := range res.NewPromotions {
		sig := s.comparator.Signature(p)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		fresh = append(fresh, p)
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	for _, p := range fresh {
		s.sender.SendMessage(s.chatID, bot.FormatPromotion(p))

		// Rate limit: ~20 messages/sec max for Telegram
		time.Sleep(50 * time.Millisecond)
	}
	s.sender.SendMessage(s.chatID, bot.FormatResult(res))
	s.log.Info("sent notifications", "country", res.Country, "count", len(fresh))
}

// forgetOtherDays drops notification state of earlier days for the same
// country. Callers hold s.mu.
func (s *Scheduler) forgetOtherDays(key dayKey) {
	for k := range s.notified {
		if k != key && k.country == key.country {
			delete(s.notified, k)
		}
	}
	for k := range s.exported {
		if k != key && k.country == key.country {
			delete(s.exported, k)
		}
	}
}

// Sources builds the fetch sources of a catalogue, compiling each
// competitor's rules.
func Sources(cat *config.Sources) (map[string][]fetcher.Source, error) {
	out := make(map[string][]fetcher.Source, len(cat.Countries))
	for _, cc := range cat.CountryCodes() {
		for _, comp := range cat.Countries[cc].Competitors {
			m, err := filter.Compile(comp.ModelRules())
			if err != nil {
				return nil, fmt.Errorf("compile rules of %s/%s: %w", cc, comp.Name, err)
			}
			out[cc] = append(out[cc], fetcher.Source{
				Competitor: comp.Name,
				Country:    cc,
				FeedURL:    comp.Feed,
				Matcher:    m,
			})
		}
	}
	return out, nil
}

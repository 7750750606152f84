package bot

import (
	"fmt"
	"sort"
	"strings"

	"promowatch/internal/config"
	"promowatch/internal/export"
	"promowatch/internal/model"
)

const maxListed = 10

// FormatPromotion formats a new promotion as a Telegram notification message.
func FormatPromotion(p model.PromotionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s %s] New promotion\n\n", p.Competitor, p.Country)
	b.WriteString(p.Title)
	if p.BonusType != "" {
		fmt.Fprintf(&b, "\nType: %s", p.BonusType)
	}
	if p.BonusAmount != "" {
		fmt.Fprintf(&b, "\nAmount: %s", p.BonusAmount)
	}
	if p.Wagering != "" {
		fmt.Fprintf(&b, "\nWagering: %s", p.Wagering)
	}
	if p.ValidUntil != "" {
		fmt.Fprintf(&b, "\nValid until: %s", p.ValidUntil)
	}
	if p.Conditions != "" {
		fmt.Fprintf(&b, "\nConditions: %s", p.Conditions)
	}
	if p.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(p.URL)
	}
	return b.String()
}

// FormatResult formats the counts of a comparison run.
func FormatResult(res *model.ComparisonResult) string {
	s := res.Summary()
	return FormatSummary(&s)
}

// FormatSummary formats a stored comparison summary.
func FormatSummary(s *model.ComparisonSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s comparison for %s (%s)\n", s.Country, s.ComparisonDate, s.Mode)
	fmt.Fprintf(&b, "New: %d\n", s.NewCount)
	fmt.Fprintf(&b, "Removed: %d\n", s.RemovedCount)
	fmt.Fprintf(&b, "Current: %d, previous: %d\n", s.TotalCurrent, s.TotalPrevious)
	if s.ExcludedInvalid > 0 {
		fmt.Fprintf(&b, "Excluded invalid: %d\n", s.ExcludedInvalid)
	}
	if len(s.CompetitorsAnalyzed) > 0 {
		fmt.Fprintf(&b, "Competitors: %s\n", strings.Join(s.CompetitorsAnalyzed, ", "))
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Run %s at %s\n", s.RunID, s.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatNewList lists the titles of new promotions, at most maxListed.
func FormatNewList(res *model.ComparisonResult) string {
	if len(res.NewPromotions) == 0 {
		return "No new promotions."
	}
	var b strings.Builder
	b.WriteString("New promotions:\n")
	for i, p := range res.NewPromotions {
		if i == maxListed {
			fmt.Fprintf(&b, "...and %d more\n", len(res.NewPromotions)-maxListed)
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", p.Competitor, p.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStats formats stored statistics with insights. latest may be nil.
func FormatStats(stats *model.Stats, latest *model.ComparisonSummary) string {
	if stats.Total == 0 {
		return fmt.Sprintf("No promotions stored for %s yet.", stats.Country)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Statistics for %s\n", stats.Country)
	fmt.Fprintf(&b, "Total promotions: %d\n", stats.Total)
	if stats.LatestScraping != nil {
		fmt.Fprintf(&b, "Latest scraping: %s\n", stats.LatestScraping.UTC().Format("2006-01-02 15:04 UTC"))
	}
	writeCounts(&b, "By competitor", stats.ByCompetitor)
	writeCounts(&b, "By type", stats.ByType)

	var newCount, removedCount int
	if latest != nil {
		newCount, removedCount = latest.NewCount, latest.RemovedCount
	}
	b.WriteString("\nInsights:\n")
	for _, line := range export.Insights(stats, newCount, removedCount) {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %d\n", k, counts[k])
	}
}

// FormatSources lists the monitored competitors of one country, or of all
// countries when code is empty.
func FormatSources(s *config.Sources, code string) string {
	codes := s.CountryCodes()
	if code != "" {
		if _, ok := s.Country(code); !ok {
			return fmt.Sprintf("Country %s is not monitored.", code)
		}
		codes = []string{code}
	}

	var b strings.Builder
	for _, cc := range codes {
		c := s.Countries[cc]
		fmt.Fprintf(&b, "%s (%d competitors)\n", cc, len(c.Competitors))
		for _, comp := range c.Competitors {
			rules := "no rules"
			if n := len(comp.Rules); n > 0 {
				rules = fmt.Sprintf("%d rules", n)
			}
			fmt.Fprintf(&b, "  %s, %s\n", comp.Name, rules)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

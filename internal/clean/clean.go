// Package clean turns raw scraped promotions into the structured records
// the comparator works on.
package clean

import (
	"context"
	"log/slog"

	"promowatch/internal/model"
)

// Cleaner structures a single raw record. It returns ok=false when the
// record is not a casino promotion and should be dropped. Implementations
// may call external services; Rules does not.
type Cleaner interface {
	Clean(ctx context.Context, r model.PromotionRecord) (cleaned model.PromotionRecord, ok bool, err error)
}

// BatchStats counts the outcome of CleanBatch.
type BatchStats struct {
	Input      int
	Kept       int
	Irrelevant int
	Failed     int
}

// CleanBatch cleans records one by one. A record that fails to clean is
// logged and skipped so one bad item does not lose the batch.
func CleanBatch(ctx context.Context, c Cleaner, records []model.PromotionRecord, log *slog.Logger) ([]model.PromotionRecord, BatchStats, error) {
	stats := BatchStats{Input: len(records)}
	out := make([]model.PromotionRecord, 0, len(records))

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		cleaned, ok, err := c.Clean(ctx, r)
		if err != nil {
			stats.Failed++
			log.Warn("clean promotion", "competitor", r.Competitor, "title", r.Title, "error", err)
			continue
		}
		if !ok {
			stats.Irrelevant++
			log.Debug("dropped irrelevant promotion", "competitor", r.Competitor, "title", r.Title)
			continue
		}
		out = append(out, cleaned)
		stats.Kept++
	}
	return out, stats, nil
}

// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"promowatch/internal/model"
)

// Storage is the append-only promotion history and comparison log.
// Database failures wrap model.ErrStorageUnavailable; a missing comparison
// wraps model.ErrNotFound.
type Storage interface {
	// InsertRaw and InsertClean append records and return how many were
	// new. A record whose hash was already stored for the same country and
	// scrape day is skipped.
	InsertRaw(ctx context.Context, records []model.PromotionRecord) (int, error)
	InsertClean(ctx context.Context, records []model.PromotionRecord) (int, error)

	RawRecordsOn(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error)
	CleanRecordsOn(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error)
	CleanRecordsBefore(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error)

	SaveComparison(ctx context.Context, s *model.ComparisonSummary) error
	LatestComparison(ctx context.Context, country string) (*model.ComparisonSummary, error)
	Stats(ctx context.Context, country string) (*model.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

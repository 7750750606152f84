// Package export writes comparison results as a JSON summary and a CSV of
// new promotions.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"promowatch/internal/model"
)

const (
	timestampLayout = "20060102_150405"
	scrapedLayout   = "2006-01-02T15:04:05Z"
)

// Header is the CSV column order. It is written even when there are no rows.
var Header = []string{
	"competitor", "country", "title", "description", "bonus_amount", "bonus_type",
	"conditions", "wagering", "valid_until", "url", "scraped_at", "hash_id",
}

// Files are the paths produced by one export.
type Files struct {
	CSV  string
	JSON string
}

// Writer exports results into a directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter returns a Writer that creates files under dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Export writes new_promotions_<CC>_<ts>.csv and
// comparison_summary_<CC>_<ts>.json for res.
func (w *Writer) Export(res *model.ComparisonResult) (Files, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create export dir: %w", err)
	}

	ts := w.now().UTC().Format(timestampLayout)
	files := Files{
		CSV:  filepath.Join(w.dir, fmt.Sprintf("new_promotions_%s_%s.csv", res.Country, ts)),
		JSON: filepath.Join(w.dir, fmt.Sprintf("comparison_summary_%s_%s.json", res.Country, ts)),
	}

	if err := writeFile(files.CSV, func(f io.Writer) error { return WriteCSV(f, res.NewPromotions) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.JSON, func(f io.Writer) error { return WriteJSON(f, res) }); err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON writes res as indented JSON. Empty promotion lists are encoded
// as [].
func WriteJSON(w io.Writer, res *model.ComparisonResult) error {
	out := *res
	if out.NewPromotions == nil {
		out.NewPromotions = []model.PromotionRecord{}
	}
	if out.RemovedPromotions == nil {
		out.RemovedPromotions = []model.PromotionRecord{}
	}
	if out.CompetitorsAnalyzed == nil {
		out.CompetitorsAnalyzed = []string{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode comparison: %w", err)
	}
	return nil
}

// WriteCSV writes records with a header row, one record per line.
func WriteCSV(w io.Writer, records []model.PromotionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Competitor, r.Country, r.Title, r.Description, r.BonusAmount, r.BonusType,
			r.Conditions, r.Wagering, r.ValidUntil, r.URL, formatScraped(r.ScrapedAt), r.HashID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatScraped(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(scrapedLayout)
}

// Package fetcher downloads competitor promotion feeds and turns their items
// into raw promotion records.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"promowatch/internal/filter"
	"promowatch/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source is one competitor feed of a country.
type Source struct {
	Competitor string
	Country    string
	FeedURL    string
	Matcher    *filter.Matcher
}

// Fetcher downloads and parses promotion feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "PromoWatch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Scrape fetches the feed of src and returns its matching items as raw
// records stamped with scrapedAt.
func (f *Fetcher) Scrape(ctx context.Context, src Source, scrapedAt time.Time) ([]model.PromotionRecord, error) {
	feed, err := f.Fetch(ctx, src.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s feed: %w", src.Competitor, err)
	}
	return Records(feed.Items, src, scrapedAt), nil
}

// Records converts feed items into raw records. Items without a title or
// rejected by the source rules are skipped. The first item category, when
// present, is kept as the raw bonus type.
func Records(items []*gofeed.Item, src Source, scrapedAt time.Time) []model.PromotionRecord {
	var out []model.PromotionRecord
	for _, item := range items {
		title := PlainText(item.Title)
		if title == "" {
			continue
		}
		desc := PlainText(item.Description)
		if desc == "" {
			desc = PlainText(item.Content)
		}
		if !src.Matcher.Match(filter.Item{Title: title, Description: desc}) {
			continue
		}

		var bonusType string
		if len(item.Categories) > 0 {
			bonusType = strings.TrimSpace(item.Categories[0])
		}

		out = append(out, model.PromotionRecord{
			Competitor:  src.Competitor,
			Country:     src.Country,
			Title:       title,
			Description: desc,
			BonusType:   bonusType,
			URL:         strings.TrimSpace(item.Link),
			ScrapedAt:   scrapedAt.UTC(),
			HashID:      model.ContentHash(src.Competitor, title, "", bonusType),
		})
	}
	return out
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	// Block elements otherwise run together: "</p><p>" has no text between.
	doc.Find("p, li, div, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promowatch/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to PromoWatch!

I track competitor casino promotions per country and announce new ones here.

Quick start:
1. /sources - see which competitors are monitored
2. /latest <country> - the most recent comparison
3. /compare <country> - run a comparison now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/sources [country] - monitored competitors
/latest <country> - most recent comparison summary
/stats <country> - stored promotions and insights
/compare <country> [YYYY-MM-DD] - compare a day with its history

Country codes are two letters, e.g. AE or SA.`)
}

func (b *Bot) handleSources(chatID int64, args string) {
	if b.sources == nil {
		b.reply(chatID, "No sources configured.")
		return
	}
	var code string
	if args != "" {
		cc, err := ParseCountryArg(args)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		code = cc
	}
	b.reply(chatID, FormatSources(b.sources, code))
}

func (b *Bot) handleLatest(ctx context.Context, chatID int64, args string) {
	cc, err := ParseCountryArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /latest <country>")
		return
	}

	s, err := b.store.LatestComparison(ctx, cc)
	if errors.Is(err, model.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("No comparison for %s yet.", cc))
		return
	}
	if err != nil {
		b.log.Error("latest comparison", "country", cc, "error", err)
		b.reply(chatID, "Failed to load the latest comparison.")
		return
	}
	b.reply(chatID, FormatSummary(s))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, args string) {
	cc, err := ParseCountryArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /stats <country>")
		return
	}

	stats, err := b.store.Stats(ctx, cc)
	if err != nil {
		b.log.Error("stats", "country", cc, "error", err)
		b.reply(chatID, "Failed to load statistics.")
		return
	}

	latest, err := b.store.LatestComparison(ctx, cc)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		b.log.Error("latest comparison", "country", cc, "error", err)
	}
	if err != nil {
		latest = nil
	}
	b.reply(chatID, FormatStats(stats, latest))
}

func (b *Bot) handleCompare(ctx context.Context, chatID int64, args string) {
	ca, err := ParseCompareArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	asOf := ca.Date
	if asOf.IsZero() {
		asOf = time.Now()
	}

	res, err := b.comparator.Compare(ctx, ca.Country, asOf)
	if err != nil {
		b.log.Error("compare", "country", ca.Country, "error", err)
		b.reply(chatID, "Comparison failed, try again later.")
		return
	}
	b.reply(chatID, FormatResult(res))
	if res.NewCount > 0 {
		b.reply(chatID, FormatNewList(res))
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"promowatch/internal/api"
	"promowatch/internal/bot"
	"promowatch/internal/compare"
	"promowatch/internal/config"
	"promowatch/internal/export"
	"promowatch/internal/model"
	"promowatch/internal/scheduler"
	"promowatch/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "process every country once and exit")
	date := flag.String("date", "", "comparison day for -once (YYYY-MM-DD, default today); scraped records are always stamped now")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	asOf := time.Now()
	if *date != "" {
		asOf, err = time.Parse(model.DateLayout, *date)
		if err != nil {
			log.Error("invalid -date", "date", *date, "error", err)
			os.Exit(1)
		}
	}

	catalogue, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		log.Error("load sources", "path", cfg.SourcesPath, "error", err)
		os.Exit(1)
	}
	sources, err := scheduler.Sources(catalogue)
	if err != nil {
		log.Error("build sources", "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	comparator := compare.New(store, log)
	comparator.SetMode(cfg.CompareMode)

	var (
		b      *bot.Bot
		sender scheduler.Sender
	)
	if cfg.BotEnabled() {
		b, err = bot.New(cfg.TelegramBotToken, store, comparator, catalogue, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		sender = b
	}

	sched := scheduler.New(store, sources, sender, cfg.TelegramChatID, log)
	sched.SetComparator(comparator)
	sched.SetExporter(export.NewWriter(cfg.ExportDir))
	sched.SetTickInterval(cfg.CheckInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := sched.RunOnce(ctx, asOf); err != nil {
			log.Error("run once", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("starting promowatch",
		"countries", catalogue.CountryCodes(),
		"mode", cfg.CompareMode,
		"interval", cfg.CheckInterval,
		"bot", cfg.BotEnabled(),
		"http_addr", cfg.HTTPAddr,
	)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewHandler(store, comparator, log).NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server", "error", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if b != nil {
		go b.Run(ctx)
	}

	sched.Run(ctx)

	log.Info("promowatch stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

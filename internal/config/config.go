// Package config handles application configuration from environment
// variables and the YAML source catalogue.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"promowatch/internal/model"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath     string
	LogLevel         string
	SourcesPath      string
	ExportDir        string
	CompareMode      model.CompareMode
	CheckInterval    time.Duration
	TelegramBotToken string
	TelegramChatID   int64
	AllowedUsers     []int64
	HTTPAddr         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	mode, err := model.ParseCompareMode(os.Getenv("COMPARE_MODE"))
	if err != nil {
		return nil, fmt.Errorf("COMPARE_MODE: %w", err)
	}

	interval := time.Hour
	if raw := os.Getenv("CHECK_INTERVAL"); raw != "" {
		interval, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL %q: %w", raw, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("CHECK_INTERVAL must be positive, got %s", interval)
		}
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
	}
	if token != "" && chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/promowatch.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		SourcesPath:      envOrDefault("SOURCES_PATH", "./sources.yaml"),
		ExportDir:        envOrDefault("EXPORT_DIR", "./output"),
		CompareMode:      mode,
		CheckInterval:    interval,
		TelegramBotToken: token,
		TelegramChatID:   chatID,
		AllowedUsers:     allowedUsers,
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
	}, nil
}

// BotEnabled reports whether a Telegram token was configured.
func (c *Config) BotEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

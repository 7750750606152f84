package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"promowatch/internal/model"
)

var envKeys = []string{
	"DATABASE_PATH", "LOG_LEVEL", "SOURCES_PATH", "EXPORT_DIR", "COMPARE_MODE", "CHECK_INTERVAL",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "ALLOWED_USERS", "HTTP_ADDR",
}

func TestLoad(t *testing.T) {
	defaults := Config{
		DatabasePath:  "./data/promowatch.db",
		LogLevel:      "info",
		SourcesPath:   "./sources.yaml",
		ExportDir:     "./output",
		CompareMode:   model.ModeSemantic,
		CheckInterval: time.Hour,
	}

	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: func() *Config { c := defaults; return &c },
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_PATH":      "/tmp/p.db",
				"LOG_LEVEL":          "debug",
				"SOURCES_PATH":       "/etc/promowatch/sources.yaml",
				"EXPORT_DIR":         "/tmp/out",
				"COMPARE_MODE":       "HASH",
				"CHECK_INTERVAL":     "30m",
				"TELEGRAM_BOT_TOKEN": "tok",
				"TELEGRAM_CHAT_ID":   "-100123",
				"ALLOWED_USERS":      "111,222,333",
				"HTTP_ADDR":          ":8080",
			},
			want: func() *Config {
				return &Config{
					DatabasePath:     "/tmp/p.db",
					LogLevel:         "debug",
					SourcesPath:      "/etc/promowatch/sources.yaml",
					ExportDir:        "/tmp/out",
					CompareMode:      model.ModeHash,
					CheckInterval:    30 * time.Minute,
					TelegramBotToken: "tok",
					TelegramChatID:   -100123,
					AllowedUsers:     []int64{111, 222, 333},
					HTTPAddr:         ":8080",
				}
			},
		},
		{
			name: "allowed users with spaces",
			env:  map[string]string{"ALLOWED_USERS": " 10 , 20 , "},
			want: func() *Config { c := defaults; c.AllowedUsers = []int64{10, 20}; return &c },
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "token without chat id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok"},
			wantErr: true,
		},
		{
			name:    "bad chat id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TELEGRAM_CHAT_ID": "chat"},
			wantErr: true,
		},
		{
			name:    "unknown compare mode",
			env:     map[string]string{"COMPARE_MODE": "fuzzy"},
			wantErr: true,
		},
		{
			name:    "bad interval",
			env:     map[string]string{"CHECK_INTERVAL": "daily"},
			wantErr: true,
		},
		{
			name:    "negative interval",
			env:     map[string]string{"CHECK_INTERVAL": "-1h"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{name: "empty list allows everyone", allowedUsers: nil, userID: 42, want: true},
		{name: "user in list", allowedUsers: []int64{10, 20, 30}, userID: 20, want: true},
		{name: "user not in list", allowedUsers: []int64{10, 20, 30}, userID: 99, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			if got := cfg.IsUserAllowed(tt.userID); got != tt.want {
				t.Errorf("IsUserAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

const sampleSources = `
countries:
  ae:
    competitors:
      - name: Rabona
        feed: https://rabona.example/promotions.xml
        rules:
          - kind: include
            value: bonus
          - kind: exclude_re
            scope: title
            value: "poker|bingo"
      - name: 1xBet
        feed: https://1xbet.example/rss
  SA:
    competitors: []
`

func TestParseSources(t *testing.T) {
	s, err := ParseSources([]byte(sampleSources))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}

	if diff := cmp.Diff([]string{"AE", "SA"}, s.CountryCodes()); diff != "" {
		t.Errorf("CountryCodes mismatch (-want +got):\n%s", diff)
	}

	ae, ok := s.Country("ae")
	if !ok {
		t.Fatal("country ae not found")
	}
	if len(ae.Competitors) != 2 {
		t.Fatalf("got %d competitors, want 2", len(ae.Competitors))
	}

	want := []model.Rule{
		{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "bonus"},
		{Kind: model.RuleExcludeRe, Scope: model.ScopeTitle, Value: "poker|bingo"},
	}
	if diff := cmp.Diff(want, ae.Competitors[0].ModelRules()); diff != "" {
		t.Errorf("ModelRules mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSourcesErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "countries: [unterminated"},
		{name: "no countries", yaml: "countries: {}"},
		{name: "missing feed", yaml: "countries:\n  AE:\n    competitors:\n      - name: Rabona\n"},
		{name: "missing name", yaml: "countries:\n  AE:\n    competitors:\n      - feed: https://x\n"},
		{
			name: "duplicate competitor",
			yaml: "countries:\n  AE:\n    competitors:\n      - {name: A, feed: x}\n      - {name: A, feed: y}\n",
		},
		{
			name: "bad regex",
			yaml: "countries:\n  AE:\n    competitors:\n      - name: A\n        feed: x\n        rules:\n          - {kind: include_re, value: \"[bad\"}\n",
		},
		{name: "duplicate after upper-casing", yaml: "countries:\n  ae: {}\n  AE: {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSources([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(sampleSources), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSources(path); err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if _, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

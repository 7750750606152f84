package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"promowatch/internal/compare"
	"promowatch/internal/config"
	"promowatch/internal/export"
	"promowatch/internal/fetcher"
	"promowatch/internal/filter"
	"promowatch/internal/model"
	"promowatch/internal/normalize"
	"promowatch/internal/signature"
	"promowatch/internal/storage"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// mockHTTP serves feeds by URL and answers 404 for anything else.
type mockHTTP struct {
	bodies map[string]string
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	body, ok := m.bodies[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString("not found"))}, nil
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/promotions.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const rabonaFeed = "https://rabona.example/rss"

func testSources(t *testing.T) map[string][]fetcher.Source {
	t.Helper()
	noPoker, err := filter.Compile([]model.Rule{{Kind: model.RuleExclude, Scope: model.ScopeTitle, Value: "poker"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return map[string][]fetcher.Source{
		"AE": {
			{Competitor: "Rabona", Country: "AE", FeedURL: rabonaFeed, Matcher: noPoker},
			{Competitor: "EmirBet", Country: "AE", FeedURL: "https://emirbet.example/rss"},
		},
	}
}

func newTestScheduler(t *testing.T, store storage.Storage, sources map[string][]fetcher.Source, sender Sender) *Scheduler {
	t.Helper()
	f := fetcher.New(&mockHTTP{bodies: map[string]string{rabonaFeed: loadFixture(t)}})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := NewWithFetcher(store, f, sources, sender, 100, log)
	sched.now = func() time.Time { return day2 }
	return sched
}

var (
	day2 = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	day3 = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
)

func TestProcessCountry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}
	sched := newTestScheduler(t, store, testSources(t), sender)

	res, err := sched.ProcessCountry(ctx, "AE", day2)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := &model.ComparisonResult{
		Mode:                model.ModeSemantic,
		ComparisonDate:      "2025-03-02",
		Country:             "AE",
		NewCount:            2,
		RemovedPromotions:   []model.PromotionRecord{},
		TotalCurrent:        2,
		CompetitorsAnalyzed: []string{"Rabona"},
	}
	opts := cmpopts.IgnoreFields(model.ComparisonResult{}, "RunID", "NewPromotions")
	if diff := cmp.Diff(want, res, opts); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	var titles []string
	for _, p := range res.NewPromotions {
		titles = append(titles, p.Title)
	}
	if diff := cmp.Diff([]string{"Weekly Cashback 10%", "Welcome Bonus 100% up to $500"}, titles); diff != "" {
		t.Errorf("new titles mismatch (-want +got):\n%s", diff)
	}

	raw, err := store.RawRecordsOn(ctx, "AE", day2)
	if err != nil {
		t.Fatalf("raw records: %v", err)
	}
	if diff := cmp.Diff(3, len(raw)); diff != "" {
		t.Errorf("raw count mismatch (-want +got):\n%s", diff)
	}
	cleaned, err := store.CleanRecordsOn(ctx, "AE", day2)
	if err != nil {
		t.Fatalf("clean records: %v", err)
	}
	if diff := cmp.Diff(2, len(cleaned)); diff != "" {
		t.Errorf("clean count mismatch (-want +got):\n%s", diff)
	}

	msgs := sender.getMessages()
	if diff := cmp.Diff(3, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	for _, m := range msgs {
		if diff := cmp.Diff(int64(100), m.ChatID); diff != "" {
			t.Errorf("chatID mismatch (-want +got):\n%s", diff)
		}
	}
	if !strings.HasPrefix(msgs[0].Text, "[Rabona AE] New promotion") {
		t.Errorf("first message = %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[2].Text, "AE comparison for 2025-03-02 (semantic)") {
		t.Errorf("summary message = %q", msgs[2].Text)
	}
}

func TestProcessCountryNotifiesOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}
	sched := newTestScheduler(t, store, testSources(t), sender)

	for range [2]struct{}{} {
		if _, err := sched.ProcessCountry(ctx, "AE", day2); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if diff := cmp.Diff(3, len(sender.getMessages())); diff != "" {
		t.Errorf("message count after re-run mismatch (-want +got):\n%s", diff)
	}

	sched.now = func() time.Time { return day3 }
	res, err := sched.ProcessCountry(ctx, "AE", day3)
	if err != nil {
		t.Fatalf("process next day: %v", err)
	}
	if diff := cmp.Diff(0, res.NewCount); diff != "" {
		t.Errorf("next day new count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, len(sender.getMessages())); diff != "" {
		t.Errorf("message count next day mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessCountryExports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sched := newTestScheduler(t, newTestStore(t), testSources(t), nil)
	sched.SetExporter(export.NewWriter(dir))

	for range [2]struct{}{} {
		if _, err := sched.ProcessCountry(ctx, "AE", day2); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	if diff := cmp.Diff(2, len(entries)); diff != "" {
		t.Errorf("export file count mismatch (-want +got):\n%s", diff)
	}
	for _, e := range entries {
		if !strings.Contains(e.Name(), "_AE_") {
			t.Errorf("unexpected export file %s", e.Name())
		}
	}
}

func TestProcessCountryStorageUnavailable(t *testing.T) {
	store := newTestStore(t)
	sched := newTestScheduler(t, store, testSources(t), nil)
	_ = store.Close()

	_, err := sched.ProcessCountry(context.Background(), "AE", day2)
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sources := testSources(t)
	sources["SA"] = []fetcher.Source{{Competitor: "1xBet", Country: "SA", FeedURL: "https://1xbet.example/rss"}}
	sched := newTestScheduler(t, store, sources, nil)

	if err := sched.RunOnce(ctx, day2); err != nil {
		t.Fatalf("run once: %v", err)
	}

	for cc, wantNew := range map[string]int{"AE": 2, "SA": 0} {
		s, err := store.LatestComparison(ctx, cc)
		if err != nil {
			t.Fatalf("latest %s: %v", cc, err)
		}
		if diff := cmp.Diff(wantNew, s.NewCount); diff != "" {
			t.Errorf("%s new count mismatch (-want +got):\n%s", cc, diff)
		}
	}
}

func TestRunOnceEarlierDay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sched := newTestScheduler(t, store, testSources(t), nil)
	sched.now = func() time.Time { return day3 }

	if err := sched.RunOnce(ctx, day2); err != nil {
		t.Fatalf("run once: %v", err)
	}

	for day, want := range map[time.Time]int{day2: 0, day3: 3} {
		raw, err := store.RawRecordsOn(ctx, "AE", day)
		if err != nil {
			t.Fatalf("raw records: %v", err)
		}
		if diff := cmp.Diff(want, len(raw)); diff != "" {
			t.Errorf("raw count on %s mismatch (-want +got):\n%s", day.Format(model.DateLayout), diff)
		}
		for _, r := range raw {
			if diff := cmp.Diff("2025-03-03", r.ScrapedDay()); diff != "" {
				t.Errorf("scraped day mismatch (-want +got):\n%s", diff)
			}
		}
	}

	s, err := store.LatestComparison(ctx, "AE")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	want := model.ComparisonSummary{
		Mode:                model.ModeSemantic,
		ComparisonDate:      "2025-03-02",
		Country:             "AE",
		CompetitorsAnalyzed: []string{},
	}
	opts := cmpopts.IgnoreFields(model.ComparisonSummary{}, "ID", "RunID", "CreatedAt")
	if diff := cmp.Diff(want, *s, opts, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyUsesComparatorSignature(t *testing.T) {
	base := model.PromotionRecord{
		Competitor:  "Rabona",
		Country:     "AE",
		Title:       "Weekly Cashback",
		BonusType:   "Cashback",
		BonusAmount: "10%",
		ScrapedAt:   day2,
	}
	vip := base
	vip.Conditions = "VIP players only"
	res := &model.ComparisonResult{
		Mode:           model.ModeSemantic,
		ComparisonDate: "2025-03-02",
		Country:        "AE",
		NewCount:       2,
		NewPromotions:  []model.PromotionRecord{base, vip},
	}
	key := dayKey{country: "AE", day: "2025-03-02"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		keywords []string
		want     int
	}{
		{name: "default keywords", keywords: signature.DefaultConditionKeywords, want: 2},
		{name: "vip keyword", keywords: append(slices.Clone(signature.DefaultConditionKeywords), "vip"), want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			sender := &mockSender{}
			sched := newTestScheduler(t, store, testSources(t), sender)
			sched.SetComparator(compare.NewWithBuilder(store, signature.New(normalize.Default(), tt.keywords), log))

			sched.notify(key, res)
			if diff := cmp.Diff(tt.want, len(sender.getMessages())); diff != "" {
				t.Errorf("message count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	sender := &mockSender{}
	sched := newTestScheduler(t, store, testSources(t), sender)
	sched.SetTickInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for len(sender.getMessages()) < 3 {
		select {
		case <-deadline:
			t.Fatal("initial check did not notify")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSources(t *testing.T) {
	cat, err := config.ParseSources([]byte(`
countries:
  ae:
    competitors:
      - name: Rabona
        feed: https://rabona.example/rss
        rules:
          - kind: include
            value: bonus
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got, err := Sources(cat)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if diff := cmp.Diff([]string{"AE"}, keysOf(got)); diff != "" {
		t.Fatalf("countries mismatch (-want +got):\n%s", diff)
	}
	src := got["AE"][0]
	if diff := cmp.Diff("Rabona|AE|https://rabona.example/rss", src.Competitor+"|"+src.Country+"|"+src.FeedURL); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
	if src.Matcher.Match(filter.Item{Title: "Responsible gaming"}) {
		t.Error("matcher should require the include term")
	}
}

func keysOf(m map[string][]fetcher.Source) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

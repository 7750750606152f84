package dedupe

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"promowatch/internal/model"
	"promowatch/internal/signature"
)

func rabona(title string) model.PromotionRecord {
	return model.PromotionRecord{
		Competitor: "Rabona",
		Country:    "AE",
		Title:      title,
		BonusType:  "Welcome Bonus",
	}
}

func TestDedupeRewordedDuplicates(t *testing.T) {
	a := rabona("Welcome offer")
	a.Description = "Get 35x wagering on your first deposit bonus"
	b := rabona("Welcome offer!")
	b.Description = "First deposit bonus — wagering requirement 35x"

	got := Dedupe([]model.PromotionRecord{a, b})
	if len(got) != 1 {
		t.Fatalf("Dedupe returned %d records, want 1", len(got))
	}
	// The longer description wins.
	if diff := cmp.Diff(b, got[0]); diff != "" {
		t.Errorf("winner mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupeTieBreaks(t *testing.T) {
	tests := []struct {
		name   string
		winner func(r *model.PromotionRecord)
		loser  func(r *model.PromotionRecord)
	}{
		{
			name:   "more complete fields",
			winner: func(r *model.PromotionRecord) { r.Conditions = "Min deposit 10"; r.ValidUntil = "2025-12-31" },
			loser:  func(r *model.PromotionRecord) { r.Description = "a much longer description than the other one" },
		},
		{
			name:   "longer description",
			winner: func(r *model.PromotionRecord) { r.Description = "Deposit and play today" },
			loser:  func(r *model.PromotionRecord) { r.Description = "Deposit" },
		},
		{
			name:   "fewer query markers",
			winner: func(r *model.PromotionRecord) { r.URL = "https://rabona.com/promotions/welcome-offer-page" },
			loser:  func(r *model.PromotionRecord) { r.URL = "https://rabona.com/p?utm=1&x=2" },
		},
		{
			name:   "shorter url",
			winner: func(r *model.PromotionRecord) { r.URL = "https://rabona.com/w" },
			loser:  func(r *model.PromotionRecord) { r.URL = "https://rabona.com/welcome" },
		},
		{
			name:   "lower id",
			winner: func(r *model.PromotionRecord) { r.ID = 3 },
			loser:  func(r *model.PromotionRecord) { r.ID = 7 },
		},
		{
			name:   "lower hash id",
			winner: func(r *model.PromotionRecord) { r.HashID = "sha256:aa" },
			loser:  func(r *model.PromotionRecord) { r.HashID = "sha256:bb" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := rabona("Welcome")
			w.BonusAmount = "$100"
			tt.winner(&w)
			l := rabona("Welcome")
			l.BonusAmount = "$100"
			tt.loser(&l)

			for _, in := range [][]model.PromotionRecord{{w, l}, {l, w}} {
				got := Dedupe(in)
				if diff := cmp.Diff([]model.PromotionRecord{w}, got); diff != "" {
					t.Errorf("Dedupe mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestDedupeDeterministic(t *testing.T) {
	records := []model.PromotionRecord{
		{Competitor: "Rabona", Country: "AE", Title: "A", BonusType: "Welcome Bonus", BonusAmount: "$100"},
		{Competitor: "Rabona", Country: "AE", Title: "B", BonusType: "Welcome Bonus", BonusAmount: "100 USD"},
		{Competitor: "Rabona", Country: "AE", Title: "C", BonusType: "Cashback", BonusAmount: "10%"},
		{Competitor: "1xBet", Country: "AE", Title: "D", BonusType: "Free Spins", Description: "50 free spins"},
	}

	first := Dedupe(records)
	if len(first) != 3 {
		t.Fatalf("Dedupe returned %d records, want 3", len(first))
	}
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Dedupe(records)); diff != "" {
			t.Fatalf("Dedupe not deterministic (-first +again):\n%s", diff)
		}
	}
	// Identical scores fall back to input position.
	if first[2].Title != "A" {
		t.Errorf("winner of the $100 group = %q, want %q", first[2].Title, "A")
	}
}

func TestDedupeWithStats(t *testing.T) {
	records := []model.PromotionRecord{
		rabona("one"),
		rabona("two"),
		{Competitor: "Rabona", Country: "AE"},
		{Country: "AE", Title: "no competitor"},
		{Competitor: "Rabona", Country: "AE", Title: "Cashback", BonusType: "Cashback"},
	}

	got, stats := NewResolver(signature.Default()).DedupeWithStats(records)
	want := Stats{Input: 5, Unique: 2, Duplicates: 1, Invalid: 2}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(got) != 2 {
		t.Errorf("Dedupe returned %d records, want 2", len(got))
	}
}

func TestDedupeEmpty(t *testing.T) {
	got := Dedupe(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Dedupe(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestGroupsSizes(t *testing.T) {
	records := []model.PromotionRecord{rabona("a"), rabona("b"), rabona("c")}
	groups, _ := NewResolver(signature.Default()).Groups(records)
	want := []Group{{Signature: "rabona|AE|welcome bonus", Record: records[0], Size: 3}}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("Groups mismatch (-want +got):\n%s", diff)
	}
}

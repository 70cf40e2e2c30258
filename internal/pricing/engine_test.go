package pricing

import (
	"bytes"
	"testing"
	"time"

	"github.com/courtbook/court-booking/internal/model"
)

func indoorCourt() model.Court {
	return model.Court{ID: 1, Name: "court_1", Type: model.CourtIndoor, Enabled: true, HourlyCents: 60000}
}

// window returns a 1-hour window starting at the given hour on a Monday.
func window(t *testing.T, hour int) model.TimeWindow {
	t.Helper()
	start := time.Date(2025, 12, 15, hour, 0, 0, 0, time.UTC) // Monday
	return model.NewTimeWindow(start, start.Add(time.Hour))
}

func peakAndIndoorRules() RuleSet {
	return RuleSet{
		Version: 7,
		Rules: []model.PricingRule{
			{
				ID: 1, Name: "Peak 18-21", Enabled: true, Priority: 10,
				Match:    model.RuleMatch{StartTime: "18:00", EndTime: "21:00"},
				Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 20},
				Stack:    model.StackAdditive,
			},
			{
				ID: 2, Name: "Indoor", Enabled: true, Priority: 5,
				Match:    model.RuleMatch{CourtType: "indoor"},
				Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 25},
				Stack:    model.StackAdditive,
			},
		},
	}
}

func TestAdditiveStackingAgainstBase(t *testing.T) {
	// base 600/hr, +20% peak, +25% indoor at 19:00 -> deltas 120 and 150,
	// total 870 (all in cents here).
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 19)}, peakAndIndoorRules())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if res.BaseCents != 60000 {
		t.Fatalf("base = %d, want 60000", res.BaseCents)
	}
	if len(res.RuleBreakdown) != 2 {
		t.Fatalf("breakdown has %d lines, want 2", len(res.RuleBreakdown))
	}
	if res.RuleBreakdown[0].DeltaCents != 12000 || res.RuleBreakdown[1].DeltaCents != 15000 {
		t.Fatalf("deltas = [%d %d], want [12000 15000]",
			res.RuleBreakdown[0].DeltaCents, res.RuleBreakdown[1].DeltaCents)
	}
	if res.TotalCents != 87000 {
		t.Fatalf("total = %d, want 87000", res.TotalCents)
	}
	if res.RuleSetVersion != 7 {
		t.Fatalf("rule set version = %d, want 7", res.RuleSetVersion)
	}
}

func TestEquipmentAndCoachLineItems(t *testing.T) {
	coach := &model.Coach{ID: 1, Name: "sam", HourlyCents: 30000, Active: true}
	req := Request{
		Court:  indoorCourt(),
		Window: window(t, 19),
		Equipment: []EquipmentLine{
			{Item: model.EquipmentItem{SKU: "racket", TotalQty: 10, RentalCents: 10000, Active: true}, Quantity: 1},
		},
		Coach: coach,
	}
	res, err := Price(req, peakAndIndoorRules())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// 870 + 100 racket + 300 coach = 1270
	if res.TotalCents != 127000 {
		t.Fatalf("total = %d, want 127000", res.TotalCents)
	}
}

func TestOffPeakSkipsTimeRule(t *testing.T) {
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, peakAndIndoorRules())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// Only the indoor rule applies: 600 + 150.
	if res.TotalCents != 75000 {
		t.Fatalf("total = %d, want 75000", res.TotalCents)
	}
	if len(res.RuleBreakdown) != 1 || res.RuleBreakdown[0].Name != "Indoor" {
		t.Fatalf("breakdown = %+v, want single Indoor line", res.RuleBreakdown)
	}
}

func TestMidnightWraparoundMatch(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{{
		ID: 1, Name: "Late night", Enabled: true, Priority: 1,
		Match:    model.RuleMatch{StartTime: "22:00", EndTime: "02:00"},
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 50},
		Stack:    model.StackAdditive,
	}}}

	for _, tc := range []struct {
		hour  int
		match bool
	}{
		{23, true},
		{1, true},
		{2, false},
		{12, false},
		{21, false},
	} {
		res, err := Price(Request{Court: indoorCourt(), Window: window(t, tc.hour)}, rules)
		if err != nil {
			t.Fatalf("Price at %02d:00: %v", tc.hour, err)
		}
		got := len(res.RuleBreakdown) == 1
		if got != tc.match {
			t.Errorf("at %02d:00 matched=%v, want %v", tc.hour, got, tc.match)
		}
	}
}

func TestDayOfWeekMatch(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{{
		ID: 1, Name: "Weekend", Enabled: true, Priority: 1,
		Match:    model.RuleMatch{Days: []string{"saturday", "sunday"}},
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 10},
		Stack:    model.StackAdditive,
	}}}

	sat := time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC)
	res, err := Price(Request{Court: indoorCourt(), Window: model.NewTimeWindow(sat, sat.Add(time.Hour))}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if len(res.RuleBreakdown) != 1 {
		t.Fatalf("saturday should match, breakdown = %+v", res.RuleBreakdown)
	}

	res, err = Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if len(res.RuleBreakdown) != 0 {
		t.Fatalf("monday should not match, breakdown = %+v", res.RuleBreakdown)
	}
}

func TestMultiplicativeStacking(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{
		{
			ID: 1, Name: "Surge", Enabled: true, Priority: 10,
			Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 20},
			Stack:    model.StackAdditive,
		},
		{
			ID: 2, Name: "Member discount", Enabled: true, Priority: 5,
			Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: -10},
			Stack:    model.StackMultiplicative,
		},
	}}
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// 600 + 120 = 720, then * 0.9 = 648.
	if res.TotalCents != 64800 {
		t.Fatalf("total = %d, want 64800", res.TotalCents)
	}
	if res.RuleBreakdown[1].DeltaCents != -7200 {
		t.Fatalf("multiplicative delta = %d, want -7200", res.RuleBreakdown[1].DeltaCents)
	}
}

func TestMaxStackRecordsOnlyWhenRaising(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{
		{
			ID: 1, Name: "Floor +50%", Enabled: true, Priority: 10,
			Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 50},
			Stack:    model.StackMax,
		},
		{
			ID: 2, Name: "Floor +10%", Enabled: true, Priority: 5,
			Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 10},
			Stack:    model.StackMax,
		},
	}}
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// First raises 600 -> 900; second proposes 660 and is dropped.
	if res.TotalCents != 90000 {
		t.Fatalf("total = %d, want 90000", res.TotalCents)
	}
	if len(res.RuleBreakdown) != 1 {
		t.Fatalf("breakdown has %d lines, want 1", len(res.RuleBreakdown))
	}
}

func TestPriorityTieBreaksOnID(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{
		{
			ID: 9, Name: "B", Enabled: true, Priority: 5,
			Modifier: model.Modifier{Kind: model.ModifierAbsolute, Value: 100},
			Stack:    model.StackAdditive,
		},
		{
			ID: 3, Name: "A", Enabled: true, Priority: 5,
			Modifier: model.Modifier{Kind: model.ModifierAbsolute, Value: 200},
			Stack:    model.StackAdditive,
		},
	}}
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if res.RuleBreakdown[0].RuleID != 3 || res.RuleBreakdown[1].RuleID != 9 {
		t.Fatalf("tie-break order = [%d %d], want [3 9]",
			res.RuleBreakdown[0].RuleID, res.RuleBreakdown[1].RuleID)
	}
}

func TestDisabledRulesNeverMatch(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{{
		ID: 1, Name: "Off", Enabled: false, Priority: 1,
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 99},
		Stack:    model.StackAdditive,
	}}}
	res, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if res.TotalCents != 60000 {
		t.Fatalf("total = %d, want 60000", res.TotalCents)
	}
}

func TestUnknownStackBehaviorIsAnError(t *testing.T) {
	rules := RuleSet{Rules: []model.PricingRule{{
		ID: 1, Name: "Bad", Enabled: true, Priority: 1,
		Modifier: model.Modifier{Kind: model.ModifierPercentage, Value: 10},
		Stack:    model.StackBehavior("exponential"),
	}}}
	if _, err := Price(Request{Court: indoorCourt(), Window: window(t, 10)}, rules); err == nil {
		t.Fatal("expected error for unknown stack behavior")
	}
}

func TestPriceIsDeterministic(t *testing.T) {
	req := Request{
		Court:  indoorCourt(),
		Window: window(t, 19),
		Equipment: []EquipmentLine{
			{Item: model.EquipmentItem{SKU: "racket", RentalCents: 10000, Active: true}, Quantity: 2},
		},
	}
	rules := peakAndIndoorRules()

	a, err := Price(req, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	b, err := Price(req, rules)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	ab, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	bb, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(ab, bb) {
		t.Fatalf("snapshots differ:\n%s\n%s", ab, bb)
	}
}

func TestHalfHourProration(t *testing.T) {
	start := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	w := model.NewTimeWindow(start, start.Add(90*time.Minute))
	res, err := Price(Request{Court: indoorCourt(), Window: w}, RuleSet{})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if res.BaseCents != 90000 {
		t.Fatalf("base = %d, want 90000", res.BaseCents)
	}
}

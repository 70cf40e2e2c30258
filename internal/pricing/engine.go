// Package pricing implements the rule-based price computation for booking
// requests.  Price is a pure function of the request and a rule-set
// snapshot: it has no clock or storage dependence, so it is safe to call
// outside any lock and its output is reproducible byte for byte.  All
// amounts are integer cents.
package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/courtbook/court-booking/internal/model"
)

// RuleSet is an immutable, versioned snapshot of the pricing rules taken
// at evaluation time.  Concurrent rule edits produce a new snapshot for
// future requests; they never mutate an in-flight computation.
type RuleSet struct {
	Version uint64              `json:"version"`
	Rules   []model.PricingRule `json:"rules"`
}

// EquipmentLine is one requested equipment SKU with its resolved catalog
// record.
type EquipmentLine struct {
	Item     model.EquipmentItem
	Quantity int
}

// Request carries everything the engine needs: the resolved court, the
// normalized window, and any equipment or coach add-ons.
type Request struct {
	Court     model.Court
	Window    model.TimeWindow
	Equipment []EquipmentLine
	Coach     *model.Coach
}

// RuleLine is one applied rule in the breakdown, in evaluation order.
type RuleLine struct {
	RuleID     uint64              `json:"rule_id"`
	Name       string              `json:"name"`
	Stack      model.StackBehavior `json:"stack_behavior"`
	Modifier   string              `json:"modifier"`
	DeltaCents int64               `json:"delta_cents"`
	AfterCents int64               `json:"after_cents"`
}

// LineItem is a charge contributing to the total.
type LineItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

// Result is the full pricing breakdown.  It is the pricing snapshot
// persisted with a confirmed booking.
type Result struct {
	BaseCents      int64      `json:"base_cents"`
	RuleBreakdown  []RuleLine `json:"rule_breakdown"`
	LineItems      []LineItem `json:"line_items"`
	TotalCents     int64      `json:"total_cents"`
	RuleSetVersion uint64     `json:"rule_set_version"`
}

// Snapshot serializes the result deterministically for persistence.
func (r Result) Snapshot() ([]byte, error) {
	return json.Marshal(r)
}

// Fingerprint returns a stable digest of the serialized result, useful
// for comparing quote-time and commit-time prices.
func (r Result) Fingerprint() (string, error) {
	b, err := r.Snapshot()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Price evaluates the snapshot against the request.
//
//  1. base = court hourly rate, pro-rated over the window.
//  2. Enabled rules whose predicate matches are ordered by descending
//     priority, ties broken by rule id ascending.  The tie-break is load
//     bearing: additive and multiplicative chains are order sensitive.
//  3. Each rule applies per its stack behavior.  Additive percentage
//     deltas are computed against the original base, not the running
//     total.  Multiplicative rules scale the running total.  Max rules
//     propose base-relative candidates and only record when they raise
//     the total.
//  4. Equipment and coach line items are flat additions on top.
func Price(req Request, snapshot RuleSet) (Result, error) {
	if err := req.Window.Validate(); err != nil {
		return Result{}, err
	}

	minutes := req.Window.Minutes()
	base := prorate(req.Court.HourlyCents, minutes)

	res := Result{
		BaseCents:      base,
		RuleBreakdown:  []RuleLine{},
		LineItems:      []LineItem{{Name: fmt.Sprintf("Court %s base", req.Court.Name), AmountCents: base}},
		RuleSetVersion: snapshot.Version,
	}

	matched := selectRules(snapshot.Rules, req.Court.Type, req.Window)

	total := base
	for _, rule := range matched {
		var delta int64
		switch rule.Stack {
		case model.StackAdditive:
			switch rule.Modifier.Kind {
			case model.ModifierPercentage:
				delta = roundCents(float64(base) * rule.Modifier.Value / 100)
			case model.ModifierAbsolute:
				delta = roundCents(rule.Modifier.Value)
			default:
				return Result{}, fmt.Errorf("pricing: unknown modifier kind %q in rule %d", rule.Modifier.Kind, rule.ID)
			}
			total += delta
		case model.StackMultiplicative:
			prev := total
			switch rule.Modifier.Kind {
			case model.ModifierPercentage:
				total = roundCents(float64(total) * (1 + rule.Modifier.Value/100))
			case model.ModifierAbsolute:
				total = prev + roundCents(rule.Modifier.Value)
			default:
				return Result{}, fmt.Errorf("pricing: unknown modifier kind %q in rule %d", rule.Modifier.Kind, rule.ID)
			}
			delta = total - prev
		case model.StackMax:
			var candidate int64
			switch rule.Modifier.Kind {
			case model.ModifierPercentage:
				candidate = roundCents(float64(base) * (1 + rule.Modifier.Value/100))
			case model.ModifierAbsolute:
				candidate = base + roundCents(rule.Modifier.Value)
			default:
				return Result{}, fmt.Errorf("pricing: unknown modifier kind %q in rule %d", rule.Modifier.Kind, rule.ID)
			}
			if candidate <= total {
				continue // recorded only when it changes the total
			}
			delta = candidate - total
			total = candidate
		default:
			return Result{}, fmt.Errorf("pricing: unknown stack behavior %q in rule %d", rule.Stack, rule.ID)
		}

		line := RuleLine{
			RuleID:     rule.ID,
			Name:       rule.Name,
			Stack:      rule.Stack,
			Modifier:   formatModifier(rule.Modifier),
			DeltaCents: delta,
			AfterCents: total,
		}
		res.RuleBreakdown = append(res.RuleBreakdown, line)
		res.LineItems = append(res.LineItems, LineItem{Name: rule.Name, AmountCents: delta})
	}

	for _, eq := range req.Equipment {
		amount := eq.Item.RentalCents * int64(eq.Quantity)
		res.LineItems = append(res.LineItems, LineItem{
			Name:        fmt.Sprintf("Equipment %s x%d", eq.Item.SKU, eq.Quantity),
			AmountCents: amount,
		})
		total += amount
	}

	if req.Coach != nil {
		amount := prorate(req.Coach.HourlyCents, minutes)
		res.LineItems = append(res.LineItems, LineItem{
			Name:        fmt.Sprintf("Coach %s", req.Coach.Name),
			AmountCents: amount,
		})
		total += amount
	}

	res.TotalCents = total
	return res, nil
}

// selectRules filters enabled, matching rules and orders them by
// descending priority with id-ascending tie break.
func selectRules(rules []model.PricingRule, courtType model.CourtType, w model.TimeWindow) []model.PricingRule {
	matched := make([]model.PricingRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !Matches(r.Match, courtType, w) {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

// Matches evaluates a rule predicate against a court type and window.
// The time-of-day check tests the window's start against the rule's
// [start, end) range; ranges whose start is after their end span
// midnight and match by wraparound rather than by splitting.
func Matches(m model.RuleMatch, courtType model.CourtType, w model.TimeWindow) bool {
	if !m.MatchesDay(w.Start.UTC().Weekday().String()) {
		return false
	}
	if m.StartTime != "" && m.EndTime != "" {
		startMin, okS := parseClock(m.StartTime)
		endMin, okE := parseClock(m.EndTime)
		if okS && okE {
			t := w.Start.UTC()
			tod := t.Hour()*60 + t.Minute()
			if startMin <= endMin {
				if tod < startMin || tod >= endMin {
					return false
				}
			} else { // wraparound, e.g. 22:00-02:00
				if tod < startMin && tod >= endMin {
					return false
				}
			}
		}
	}
	if ct := strings.ToLower(strings.TrimSpace(m.CourtType)); ct != "" && ct != "all" {
		if ct != string(courtType) {
			return false
		}
	}
	return true
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// prorate computes an hourly rate over a minute-precision duration.
func prorate(hourlyCents, minutes int64) int64 {
	return roundCents(float64(hourlyCents) * float64(minutes) / 60)
}

// roundCents rounds half away from zero to the nearest cent.
func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

func formatModifier(m model.Modifier) string {
	if m.Kind == model.ModifierPercentage {
		return fmt.Sprintf("%+g%%", m.Value)
	}
	return fmt.Sprintf("%+g", m.Value)
}

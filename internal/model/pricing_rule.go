package model

import (
	"strings"
	"time"
)

// ModifierKind is a closed enumeration over price modifier kinds.  New
// kinds require an explicit new case in the pricing engine; unknown
// values are an evaluation error, never a silent fallthrough.
type ModifierKind string

const (
	ModifierPercentage ModifierKind = "percentage"
	ModifierAbsolute   ModifierKind = "absolute"
)

// StackBehavior controls how a matched rule combines with the running
// total.  See the pricing engine for exact semantics.
type StackBehavior string

const (
	StackAdditive       StackBehavior = "additive"
	StackMultiplicative StackBehavior = "multiplicative"
	StackMax            StackBehavior = "max"
)

// Modifier is the tagged variant form of a rule's price adjustment.
// Value is a percentage for ModifierPercentage (20 means +20%) and an
// amount in cents for ModifierAbsolute.  Negative values are discounts.
type Modifier struct {
	Kind  ModifierKind `json:"kind"`
	Value float64      `json:"value"`
}

// RuleMatch is a rule's predicate over the booking window and court.
// Zero-value fields match everything.  StartTime/EndTime are "HH:MM"
// time-of-day bounds; a range whose start is after its end spans
// midnight and matches by wraparound.  Days holds lowercase day names
// (matched on their first three letters).  CourtType restricts the rule
// to "indoor" or "outdoor"; empty or "all" matches both.
type RuleMatch struct {
	StartTime string   `json:"start,omitempty"`
	EndTime   string   `json:"end,omitempty"`
	Days      []string `json:"days,omitempty"`
	CourtType string   `json:"court_type,omitempty"`
}

// MatchesDay reports whether the given weekday name satisfies the day
// predicate.
func (m RuleMatch) MatchesDay(weekday string) bool {
	if len(m.Days) == 0 {
		return true
	}
	wd := strings.ToLower(weekday)
	if len(wd) > 3 {
		wd = wd[:3]
	}
	for _, d := range m.Days {
		d = strings.ToLower(d)
		if len(d) > 3 {
			d = d[:3]
		}
		if d == wd {
			return true
		}
	}
	return false
}

// PricingRule is one admin-authored price modifier.  Rules are immutable
// once referenced by a pricing snapshot; edits create new effective state
// for future requests only.
//
// Fields:
//  ID       – primary key identifier; ties break ascending on it.
//  Name     – display name recorded in breakdowns.
//  Enabled  – disabled rules never match.
//  Priority – higher priorities evaluate first.
//  Match    – predicate over window and court.
//  Modifier – the tagged price adjustment.
//  Stack    – additive, multiplicative or max.
type PricingRule struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	Priority  int           `json:"priority"`
	Match     RuleMatch     `json:"match"`
	Modifier  Modifier      `json:"modifier"`
	Stack     StackBehavior `json:"stack_behavior"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

// Package detector decides, from a canonical series alone, whether a
// "K consecutive business days beyond a threshold" condition has just become true.
//
// No state is carried between runs. Whether the condition already held on the
// previous business day is re-derived from the K+1 most recent points, so the
// same streak does not alert again on later runs. A data gap directly before the
// K-window defeats that check and the streak alerts again; this is accepted.
package detector

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"streak-alerts/internal/series"
)

// Comparison is the operator applied as value <op> threshold.
type Comparison string

const (
	GreaterThan    Comparison = ">"
	GreaterOrEqual Comparison = ">="
)

// ParseComparison accepts ">", ">=", "gt" and "gte".
func ParseComparison(raw string) (Comparison, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ">", "gt":
		return GreaterThan, nil
	case ">=", "≥", "gte", "ge":
		return GreaterOrEqual, nil
	}
	return "", fmt.Errorf("unknown comparison %q (want > or >=)", raw)
}

// Symbol renders the operator for messages.
func (c Comparison) Symbol() string {
	if c == GreaterOrEqual {
		return "≥"
	}
	return ">"
}

// Holds applies the comparison.
func (c Comparison) Holds(value, threshold decimal.Decimal) bool {
	if c == GreaterOrEqual {
		return value.GreaterThanOrEqual(threshold)
	}
	return value.GreaterThan(threshold)
}

// Reasons reported with a Decision.
const (
	ReasonInsufficientHistory = "insufficient history"
	ReasonNotContiguous       = "window is not a contiguous business-day run"
	ReasonNotSatisfied        = "not every value in the window satisfies the threshold"
	ReasonAlreadySatisfied    = "condition already held on the previous business day"
	ReasonNewStreak           = "new streak"
	ReasonInvalidRunLength    = "run length must be positive"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	ShouldAlert bool
	// Window is the trailing K points (fewer when history is short); used for display.
	Window series.Series
	Reason string
}

// Rule bundles the evaluation parameters.
type Rule struct {
	Threshold  decimal.Decimal
	RunLength  int
	Comparison Comparison
}

// Evaluate is a pure function of the series and the rule.
func Evaluate(s series.Series, rule Rule) Decision {
	k := rule.RunLength
	if k <= 0 {
		return Decision{Reason: ReasonInvalidRunLength}
	}
	if s.Len() < k {
		return Decision{Window: s.Tail(k), Reason: ReasonInsufficientHistory}
	}

	window := s.Tail(k)
	if !qualifies(window, rule) {
		reason := ReasonNotSatisfied
		if !series.IsContiguousBusinessDayRun(window.Dates()) {
			reason = ReasonNotContiguous
		}
		return Decision{Window: window, Reason: reason}
	}

	if s.Len() >= k+1 && qualifies(s.Tail(k+1), rule) {
		return Decision{Window: window, Reason: ReasonAlreadySatisfied}
	}
	return Decision{ShouldAlert: true, Window: window, Reason: ReasonNewStreak}
}

func qualifies(w series.Series, rule Rule) bool {
	if !series.IsContiguousBusinessDayRun(w.Dates()) {
		return false
	}
	for _, p := range w.Points() {
		if !rule.Comparison.Holds(p.Value, rule.Threshold) {
			return false
		}
	}
	return true
}

package domain

import (
	"time"
)

// WindowKind selects the calendar window over which transactions
// are aggregated.
type WindowKind string

const (
	WindowDaily   WindowKind = "daily"
	WindowWeekly  WindowKind = "weekly"
	WindowMonthly WindowKind = "monthly"
)

// WindowKinds lists all supported window kinds in evaluation order.
var WindowKinds = []WindowKind{WindowDaily, WindowWeekly, WindowMonthly}

// AggregateResult holds per-individual rolling aggregates for one window.
// Windows are half-open [WindowStart, WindowEnd) in UTC, non-overlapping
// for a given kind. Derived data: recomputed per evaluation, never stored.
type AggregateResult struct {
	EntityID    string     `json:"entityId"`
	Kind        WindowKind `json:"windowKind"`
	WindowStart time.Time  `json:"windowStart"`
	WindowEnd   time.Time  `json:"windowEnd"`

	TotalAmount      float64 `json:"totalAmount"`
	TransactionCount int     `json:"transactionCount"`

	// Cross-account activity within the window.
	DistinctAccountIDs []string `json:"distinctAccountIds"`
	DistinctBankNames  []string `json:"distinctBankNames"`
	MultiAccount       bool     `json:"multiAccount"`
}

// Contains reports whether t falls inside the window.
func (a *AggregateResult) Contains(t time.Time) bool {
	return !t.Before(a.WindowStart) && t.Before(a.WindowEnd)
}

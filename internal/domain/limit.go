package domain

import (
	"time"
)

// LimitScope determines what a limit applies to.
type LimitScope string

const (
	// ScopePerTransaction compares a single transaction amount.
	ScopePerTransaction LimitScope = "per_transaction"

	// ScopePerWindow compares windowed aggregates.
	ScopePerWindow LimitScope = "per_window"
)

// LimitConfig defines one entry of the active limit policy.
// Multiple entries may apply to the same transaction; each applicable
// entry is evaluated independently.
type LimitConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Version  string `json:"version"`

	Scope LimitScope `json:"scope"`

	// Window is required when Scope is per_window.
	Window WindowKind `json:"windowKind,omitempty"`

	ThresholdAmount float64 `json:"thresholdAmount"`

	// ThresholdCount limits transaction count per window; 0 means unset.
	ThresholdCount int `json:"thresholdCount,omitempty"`

	// Expression is an optional CEL predicate over the transaction and
	// its window aggregates. A limit with an expression ignores the
	// threshold fields.
	Expression string `json:"expression,omitempty"`

	Enabled bool `json:"enabled"`
}

// DefaultLimitConfigs is the out-of-box limit policy, seeded into the
// store on first start when no limits exist. Editable via the limits
// API afterwards.
func DefaultLimitConfigs() []*LimitConfig {
	return []*LimitConfig{
		{
			ID:              "default-daily",
			Name:            "Daily limit",
			Version:         "1.0.0",
			Scope:           ScopePerWindow,
			Window:          WindowDaily,
			ThresholdAmount: 1000,
			Enabled:         true,
		},
		{
			ID:              "default-weekly",
			Name:            "Weekly limit",
			Version:         "1.0.0",
			Scope:           ScopePerWindow,
			Window:          WindowWeekly,
			ThresholdAmount: 5000,
			Enabled:         true,
		},
		{
			ID:              "default-monthly",
			Name:            "Monthly limit",
			Version:         "1.0.0",
			Scope:           ScopePerWindow,
			Window:          WindowMonthly,
			ThresholdAmount: 10000,
			Enabled:         true,
		},
	}
}

// Severity classifies how far past a threshold an observation landed.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ViolationKind names the rule family that produced a violation.
type ViolationKind string

const (
	// KindLimitExceeded: observed amount strictly above the threshold.
	KindLimitExceeded ViolationKind = "limit_exceeded"

	// KindCountExceeded: window transaction count strictly above the
	// configured count threshold.
	KindCountExceeded ViolationKind = "count_exceeded"

	// KindCircumvention: window total near the limit while the
	// individual was active on multiple accounts.
	KindCircumvention ViolationKind = "circumvention"

	// KindExpression: a CEL expression limit evaluated to true.
	KindExpression ViolationKind = "expression"
)

// ViolationRecord is produced when an observation breaches a limit.
// Violations are never retroactively deleted; a re-evaluation under a
// new policy supersedes them.
type ViolationRecord struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transactionId"`
	LimitID       string        `json:"limitId"`
	Kind          ViolationKind `json:"kind"`
	Observed      float64       `json:"observedValue"`
	Threshold     float64       `json:"thresholdValue"`
	Severity      Severity      `json:"severity"`
	Reason        string        `json:"reason"`
	DetectedAt    time.Time     `json:"detectedAt"`
}

package domain

import (
	"time"
)

// Evaluation status values.
const (
	StatusFlagged = "flagged"
	StatusClear   = "clear"
)

// EvaluationResult merges a normalized record with its violations and
// fraud score. This is the unit returned to and persisted for callers.
type EvaluationResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Record     TransactionRecord `json:"record"`
	Violations []ViolationRecord `json:"violations"`
	Score      FraudScore        `json:"fraudScore"`

	// Status is flagged when any violation fired or the fraud decision
	// is flag; clear otherwise.
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WindowRollup is a per-window slice of summary statistics.
type WindowRollup struct {
	WindowStart      time.Time `json:"windowStart"`
	WindowEnd        time.Time `json:"windowEnd"`
	TotalAmount      float64   `json:"totalAmount"`
	TransactionCount int       `json:"transactionCount"`
}

// SummaryStats aggregates a set of evaluation results. Computed over
// accepted rows only; rejected rows are reported per-row instead.
type SummaryStats struct {
	RecordCount int     `json:"recordCount"`
	TotalAmount float64 `json:"totalAmount"`

	ViolationCount     int `json:"violationCount"`
	WarningCount       int `json:"warningCount"`
	CriticalCount      int `json:"criticalCount"`
	CircumventionCount int `json:"circumventionCount"`

	FraudFlaggedCount int `json:"fraudFlaggedCount"`
	DegradedCount     int `json:"scoringDegradedCount"`

	DailyRollups   []WindowRollup `json:"dailyRollups,omitempty"`
	WeeklyRollups  []WindowRollup `json:"weeklyRollups,omitempty"`
	MonthlyRollups []WindowRollup `json:"monthlyRollups,omitempty"`
}

// Batch row status values.
const (
	RowAccepted = "accepted"
	RowRejected = "rejected"
)

// RowStatus reports the fate of one batch row.
type RowStatus struct {
	Row           int    `json:"row"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// BatchResult is the outcome of one batch submission: per-row statuses
// plus summary statistics over the accepted rows.
type BatchResult struct {
	BatchID  string       `json:"batchId"`
	Rows     []RowStatus  `json:"rows"`
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Summary  SummaryStats `json:"summary"`
}

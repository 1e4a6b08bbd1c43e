// Package assemble merges limit violations and fraud scores into final
// evaluation results and computes batch summary statistics.
package assemble

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel/internal/aggregate"
	"github.com/kestrelhq/kestrel/internal/domain"
)

// Assembler produces EvaluationResults and SummaryStats.
type Assembler struct{}

// New creates an assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble merges one record's violations and fraud score into a final
// result. Status is flagged when any violation fired or the fraud
// decision is flag; otherwise clear. A degraded score never flags on
// its own.
func (a *Assembler) Assemble(rec *domain.TransactionRecord, violations []domain.ViolationRecord, score domain.FraudScore) *domain.EvaluationResult {
	status := domain.StatusClear
	if len(violations) > 0 || score.Decision == domain.DecisionFlag {
		status = domain.StatusFlagged
	}

	if violations == nil {
		violations = []domain.ViolationRecord{}
	}

	return &domain.EvaluationResult{
		ID:         uuid.New().String(),
		TenantID:   rec.TenantID,
		Record:     *rec,
		Violations: violations,
		Score:      score,
		Status:     status,
		Timestamp:  time.Now().UTC(),
	}
}

// Summarize computes summary statistics over a set of results. Window
// rollups bucket the records by their UTC daily, weekly, and monthly
// windows, ordered by window start.
func (a *Assembler) Summarize(results []*domain.EvaluationResult) domain.SummaryStats {
	stats := domain.SummaryStats{}

	daily := map[time.Time]*domain.WindowRollup{}
	weekly := map[time.Time]*domain.WindowRollup{}
	monthly := map[time.Time]*domain.WindowRollup{}

	for _, res := range results {
		stats.RecordCount++
		stats.TotalAmount += res.Record.Amount

		for _, v := range res.Violations {
			stats.ViolationCount++
			switch v.Severity {
			case domain.SeverityWarning:
				stats.WarningCount++
			case domain.SeverityCritical:
				stats.CriticalCount++
			}
			if v.Kind == domain.KindCircumvention {
				stats.CircumventionCount++
			}
		}

		if res.Score.Decision == domain.DecisionFlag {
			stats.FraudFlaggedCount++
		}
		if res.Score.Degraded {
			stats.DegradedCount++
		}

		rollup(daily, res.Record, domain.WindowDaily)
		rollup(weekly, res.Record, domain.WindowWeekly)
		rollup(monthly, res.Record, domain.WindowMonthly)
	}

	stats.DailyRollups = sorted(daily)
	stats.WeeklyRollups = sorted(weekly)
	stats.MonthlyRollups = sorted(monthly)

	return stats
}

func rollup(buckets map[time.Time]*domain.WindowRollup, rec domain.TransactionRecord, kind domain.WindowKind) {
	start, end := aggregate.WindowOf(rec.Timestamp, kind)
	b, ok := buckets[start]
	if !ok {
		b = &domain.WindowRollup{WindowStart: start, WindowEnd: end}
		buckets[start] = b
	}
	b.TotalAmount += rec.Amount
	b.TransactionCount++
}

func sorted(buckets map[time.Time]*domain.WindowRollup) []domain.WindowRollup {
	if len(buckets) == 0 {
		return nil
	}
	out := make([]domain.WindowRollup, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out
}

package scoring

import (
	"github.com/kestrelhq/kestrel/internal/domain"
)

// SchemaV1 is the ordered feature schema of the scoring contract. The
// order is part of the wire format and must stay stable for a given
// model version; day_of_week counts Monday as 0. All features are sent
// as float64.
var SchemaV1 = []string{
	"amount",
	"hour_of_day",
	"day_of_week",
	"daily_total",
	"daily_count",
	"weekly_total",
	"weekly_count",
	"monthly_total",
	"monthly_count",
	"distinct_accounts",
	"multi_account",
}

// BuildVector assembles the SchemaV1 feature vector from a record and
// its window aggregates. Missing window aggregates contribute zeros.
func BuildVector(rec *domain.TransactionRecord, aggs []domain.AggregateResult) []float64 {
	ts := rec.Timestamp.UTC()

	var daily, weekly, monthly *domain.AggregateResult
	for i := range aggs {
		switch aggs[i].Kind {
		case domain.WindowDaily:
			daily = &aggs[i]
		case domain.WindowWeekly:
			weekly = &aggs[i]
		case domain.WindowMonthly:
			monthly = &aggs[i]
		}
	}

	distinctAccounts := 0
	multiAccount := 0.0
	if daily != nil {
		distinctAccounts = len(daily.DistinctAccountIDs)
		if daily.MultiAccount {
			multiAccount = 1.0
		}
	}

	return []float64{
		rec.Amount,
		float64(ts.Hour()),
		float64((int(ts.Weekday()) + 6) % 7),
		total(daily), count(daily),
		total(weekly), count(weekly),
		total(monthly), count(monthly),
		float64(distinctAccounts),
		multiAccount,
	}
}

func total(agg *domain.AggregateResult) float64 {
	if agg == nil {
		return 0
	}
	return agg.TotalAmount
}

func count(agg *domain.AggregateResult) float64 {
	if agg == nil {
		return 0
	}
	return float64(agg.TransactionCount)
}

// Package aggregate computes per-individual rolling aggregates over
// calendar windows, including cross-account activity.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Engine computes window aggregates from the historical store. Reads
// are idempotent: the same store snapshot and as-of instant always
// yield identical output.
type Engine struct {
	store domain.Store
	cache domain.Cache

	// cacheTTL bounds staleness of cached aggregates; zero disables
	// cache consultation entirely.
	cacheTTL time.Duration
}

// NewEngine creates an aggregation engine. cache may be nil.
func NewEngine(store domain.Store, cache domain.Cache, cacheTTL time.Duration) *Engine {
	return &Engine{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Aggregate computes the aggregate for one individual and window kind.
// An individual with no records in the window yields a zero-valued
// result, not an error.
func (e *Engine) Aggregate(ctx context.Context, tenantID, individualID string, asOf time.Time, kind domain.WindowKind) (*domain.AggregateResult, error) {
	if tenantID == "" || individualID == "" {
		return nil, fmt.Errorf("tenantID and individualID are required")
	}

	start, end := WindowOf(asOf, kind)
	cacheKey := aggregateKey(individualID, kind, start)

	if e.cache != nil && e.cacheTTL > 0 {
		if cached, err := e.cache.GetAggregate(ctx, tenantID, cacheKey); err == nil && cached != nil {
			return cached, nil
		}
	}

	records, err := e.store.QueryByIndividual(ctx, tenantID, individualID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", individualID, err)
	}

	agg := fold(individualID, kind, start, end, records)

	if e.cache != nil && e.cacheTTL > 0 {
		_ = e.cache.SetAggregate(ctx, tenantID, cacheKey, agg, e.cacheTTL)
	}

	return agg, nil
}

// AggregateAll computes daily, weekly, and monthly aggregates for one
// individual, in that order.
func (e *Engine) AggregateAll(ctx context.Context, tenantID, individualID string, asOf time.Time) ([]domain.AggregateResult, error) {
	results := make([]domain.AggregateResult, 0, len(domain.WindowKinds))
	for _, kind := range domain.WindowKinds {
		agg, err := e.Aggregate(ctx, tenantID, individualID, asOf, kind)
		if err != nil {
			return nil, err
		}
		results = append(results, *agg)
	}
	return results, nil
}

// Invalidate drops cached aggregates for every window containing the
// record's timestamp. Called after an append so subsequent reads see
// the new store state.
func (e *Engine) Invalidate(ctx context.Context, tenantID string, rec *domain.TransactionRecord) {
	if e.cache == nil {
		return
	}
	for _, kind := range domain.WindowKinds {
		start, _ := WindowOf(rec.Timestamp, kind)
		_ = e.cache.Delete(ctx, tenantID, aggregateKey(rec.IndividualID, kind, start))
	}
}

// Apply folds one additional record into existing aggregates, returning
// updated copies. Used to include a record under evaluation in its own
// window totals without writing it to the store first.
func Apply(aggs []domain.AggregateResult, rec *domain.TransactionRecord) []domain.AggregateResult {
	out := make([]domain.AggregateResult, len(aggs))
	for i, agg := range aggs {
		if agg.Contains(rec.Timestamp) {
			agg.TotalAmount += rec.Amount
			agg.TransactionCount++
			agg.DistinctAccountIDs = mergeDistinct(agg.DistinctAccountIDs, rec.AccountID)
			agg.DistinctBankNames = mergeDistinct(agg.DistinctBankNames, rec.BankName)
			agg.MultiAccount = len(agg.DistinctAccountIDs) >= 2
		}
		out[i] = agg
	}
	return out
}

// ByKind returns the aggregate with the given window kind, or nil.
func ByKind(aggs []domain.AggregateResult, kind domain.WindowKind) *domain.AggregateResult {
	for i := range aggs {
		if aggs[i].Kind == kind {
			return &aggs[i]
		}
	}
	return nil
}

func fold(individualID string, kind domain.WindowKind, start, end time.Time, records []*domain.TransactionRecord) *domain.AggregateResult {
	agg := &domain.AggregateResult{
		EntityID:    individualID,
		Kind:        kind,
		WindowStart: start,
		WindowEnd:   end,
	}

	accounts := make(map[string]struct{})
	banks := make(map[string]struct{})

	for _, rec := range records {
		agg.TotalAmount += rec.Amount
		agg.TransactionCount++
		accounts[rec.AccountID] = struct{}{}
		banks[rec.BankName] = struct{}{}
	}

	agg.DistinctAccountIDs = sortedKeys(accounts)
	agg.DistinctBankNames = sortedKeys(banks)
	agg.MultiAccount = len(agg.DistinctAccountIDs) >= 2

	return agg
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mergeDistinct(existing []string, value string) []string {
	for _, v := range existing {
		if v == value {
			return existing
		}
	}
	merged := append(append([]string(nil), existing...), value)
	sort.Strings(merged)
	return merged
}

func aggregateKey(individualID string, kind domain.WindowKind, start time.Time) string {
	return fmt.Sprintf("agg:%s:%s:%d", individualID, kind, start.Unix())
}

package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// fakeStore is an in-memory Store implementing only the query side the
// engine needs.
type fakeStore struct {
	domain.Store
	records []*domain.TransactionRecord
	queries int
}

func (s *fakeStore) QueryByIndividual(ctx context.Context, tenantID, individualID string, start, end time.Time) ([]*domain.TransactionRecord, error) {
	s.queries++
	var out []*domain.TransactionRecord
	for _, rec := range s.records {
		if rec.TenantID != tenantID || rec.IndividualID != individualID {
			continue
		}
		if rec.Timestamp.Before(start) || !rec.Timestamp.Before(end) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func record(id, individual, account, bank string, amount float64, ts time.Time) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:           id,
		TenantID:     "tenant-001",
		IndividualID: individual,
		AccountID:    account,
		BankName:     bank,
		Amount:       amount,
		Timestamp:    ts,
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil, 0)
	asOf := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)

	agg, err := engine.Aggregate(context.Background(), "tenant-001", "ind-001", asOf, domain.WindowDaily)
	if err != nil {
		t.Fatalf("empty window must not error: %v", err)
	}
	if agg.TotalAmount != 0 || agg.TransactionCount != 0 {
		t.Errorf("expected zero-valued aggregate, got %+v", agg)
	}
	if agg.MultiAccount {
		t.Error("empty window cannot be multi-account")
	}
	if agg.EntityID != "ind-001" || agg.Kind != domain.WindowDaily {
		t.Errorf("zero aggregate must still identify entity and window: %+v", agg)
	}
}

func TestAggregateDailyTotals(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []*domain.TransactionRecord{
		record("tx-1", "ind-001", "acc-1", "Alpha Bank", 100, day.Add(2*time.Hour)),
		record("tx-2", "ind-001", "acc-1", "Alpha Bank", 250, day.Add(20*time.Hour)),
		// Previous day: outside the window.
		record("tx-3", "ind-001", "acc-1", "Alpha Bank", 999, day.Add(-time.Hour)),
		// Different individual.
		record("tx-4", "ind-002", "acc-9", "Beta Bank", 500, day.Add(5*time.Hour)),
	}}

	engine := NewEngine(store, nil, 0)
	agg, err := engine.Aggregate(context.Background(), "tenant-001", "ind-001", day.Add(12*time.Hour), domain.WindowDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if agg.TotalAmount != 350 {
		t.Errorf("expected total 350, got %f", agg.TotalAmount)
	}
	if agg.TransactionCount != 2 {
		t.Errorf("expected count 2, got %d", agg.TransactionCount)
	}
	if agg.MultiAccount {
		t.Error("single account must not be multi-account")
	}
}

func TestAggregateMultiAccount(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []*domain.TransactionRecord{
		record("tx-1", "ind-001", "acc-1", "Alpha Bank", 400, day.Add(time.Hour)),
		record("tx-2", "ind-001", "acc-2", "Beta Bank", 450, day.Add(3*time.Hour)),
	}}

	engine := NewEngine(store, nil, 0)
	agg, err := engine.Aggregate(context.Background(), "tenant-001", "ind-001", day, domain.WindowDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(agg.DistinctAccountIDs) != 2 {
		t.Fatalf("expected 2 distinct accounts, got %v", agg.DistinctAccountIDs)
	}
	if !agg.MultiAccount {
		t.Error("two distinct accounts must set the multi-account flag")
	}
	if len(agg.DistinctBankNames) != 2 {
		t.Errorf("expected 2 distinct banks, got %v", agg.DistinctBankNames)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	for i := 0; i < 10; i++ {
		store.records = append(store.records,
			record(fmt.Sprintf("tx-%d", i), "ind-001", fmt.Sprintf("acc-%d", i%3), "Alpha Bank", float64(i)*10, day.Add(time.Duration(i)*time.Hour)))
	}

	engine := NewEngine(store, nil, 0)
	ctx := context.Background()

	first, err := engine.AggregateAll(ctx, "tenant-001", "ind-001", day.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.AggregateAll(ctx, "tenant-001", "ind-001", day.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected daily/weekly/monthly, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TotalAmount != second[i].TotalAmount ||
			first[i].TransactionCount != second[i].TransactionCount ||
			len(first[i].DistinctAccountIDs) != len(second[i].DistinctAccountIDs) {
			t.Errorf("aggregate %s not deterministic: %+v vs %+v", first[i].Kind, first[i], second[i])
		}
	}
}

func TestApplyFoldsRecordIntoOwnWindows(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []*domain.TransactionRecord{
		record("tx-1", "ind-001", "acc-1", "Alpha Bank", 100, day.Add(time.Hour)),
	}}

	engine := NewEngine(store, nil, 0)
	aggs, err := engine.AggregateAll(context.Background(), "tenant-001", "ind-001", day.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	incoming := record("tx-2", "ind-001", "acc-2", "Beta Bank", 50, day.Add(2*time.Hour))
	folded := Apply(aggs, incoming)

	daily := ByKind(folded, domain.WindowDaily)
	if daily == nil {
		t.Fatal("missing daily aggregate")
	}
	if daily.TotalAmount != 150 || daily.TransactionCount != 2 {
		t.Errorf("expected 150/2 after fold, got %f/%d", daily.TotalAmount, daily.TransactionCount)
	}
	if !daily.MultiAccount {
		t.Error("fold onto a second account must set multi-account")
	}

	// Originals untouched.
	if orig := ByKind(aggs, domain.WindowDaily); orig.TotalAmount != 100 {
		t.Errorf("Apply must not mutate input, got %f", orig.TotalAmount)
	}
}

type countingCache struct {
	domain.Cache
	aggs map[string]*domain.AggregateResult
	hits int
}

func newCountingCache() *countingCache {
	return &countingCache{aggs: make(map[string]*domain.AggregateResult)}
}

func (c *countingCache) GetAggregate(ctx context.Context, tenantID, key string) (*domain.AggregateResult, error) {
	if agg, ok := c.aggs[tenantID+":"+key]; ok {
		c.hits++
		return agg, nil
	}
	return nil, nil
}

func (c *countingCache) SetAggregate(ctx context.Context, tenantID, key string, agg *domain.AggregateResult, ttl time.Duration) error {
	c.aggs[tenantID+":"+key] = agg
	return nil
}

func (c *countingCache) Delete(ctx context.Context, tenantID, key string) error {
	delete(c.aggs, tenantID+":"+key)
	return nil
}

func TestAggregateCacheRoundTrip(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{records: []*domain.TransactionRecord{
		record("tx-1", "ind-001", "acc-1", "Alpha Bank", 100, day.Add(time.Hour)),
	}}
	cache := newCountingCache()
	engine := NewEngine(store, cache, time.Minute)
	ctx := context.Background()

	if _, err := engine.Aggregate(ctx, "tenant-001", "ind-001", day, domain.WindowDaily); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Aggregate(ctx, "tenant-001", "ind-001", day, domain.WindowDaily); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.queries != 1 {
		t.Errorf("expected 1 store query with warm cache, got %d", store.queries)
	}
	if cache.hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", cache.hits)
	}

	// Invalidation forces recomputation.
	engine.Invalidate(ctx, "tenant-001", store.records[0])
	if _, err := engine.Aggregate(ctx, "tenant-001", "ind-001", day, domain.WindowDaily); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.queries != 2 {
		t.Errorf("expected recomputation after invalidate, got %d queries", store.queries)
	}
}

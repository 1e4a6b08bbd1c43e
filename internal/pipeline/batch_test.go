package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/normalize"
)

const batchCSVHeader = "transaction_id,individual_id,account_id,bank_name,amount,timestamp\n"

func TestProcessBatchMixedRows(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(t, store, nil, 0.1)

	csv := batchCSVHeader +
		"tx-001,ind-001,acc-001,Alpha Bank,100.00,2024-06-14T09:00:00Z\n" +
		"tx-002,,acc-001,Alpha Bank,200.00,2024-06-14T10:00:00Z\n" +
		"tx-003,ind-001,acc-001,Alpha Bank,abc,2024-06-14T11:00:00Z\n" +
		"tx-004,ind-002,acc-002,Beta Bank,300.00,2024-06-14T12:00:00Z\n"

	batch, err := p.ProcessBatch(context.Background(), "tenant-001", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if batch.Accepted != 2 || batch.Rejected != 2 {
		t.Fatalf("expected 2 accepted / 2 rejected, got %d / %d", batch.Accepted, batch.Rejected)
	}
	if len(batch.Rows) != 4 {
		t.Fatalf("expected 4 row statuses, got %d", len(batch.Rows))
	}

	if batch.Rows[0].Status != domain.RowAccepted || batch.Rows[0].TransactionID != "tx-001" {
		t.Errorf("row 1: %+v", batch.Rows[0])
	}
	if batch.Rows[1].Status != domain.RowRejected || batch.Rows[1].Reason == "" {
		t.Errorf("row 2 must be rejected with a reason: %+v", batch.Rows[1])
	}
	if batch.Rows[2].Status != domain.RowRejected {
		t.Errorf("row 3 must be rejected: %+v", batch.Rows[2])
	}

	// Summary covers accepted rows only.
	if batch.Summary.RecordCount != 2 {
		t.Errorf("summary must cover accepted rows only, got %d", batch.Summary.RecordCount)
	}
	if batch.Summary.TotalAmount != 400 {
		t.Errorf("expected total 400, got %f", batch.Summary.TotalAmount)
	}

	// Only accepted rows reach the store.
	if store.recordCount("tenant-001") != 2 {
		t.Errorf("expected 2 stored records, got %d", store.recordCount("tenant-001"))
	}
}

func TestProcessBatchSnapshotIsolation(t *testing.T) {
	store := newMemStore()
	dailyCap := &domain.LimitConfig{
		ID:              "daily-001",
		Name:            "daily cap",
		Scope:           domain.ScopePerWindow,
		Window:          domain.WindowDaily,
		ThresholdAmount: 1000,
		Enabled:         true,
	}
	p := newTestPipeline(t, store, nil, 0.1, dailyCap)
	ctx := context.Background()

	// Two 600s for the same individual in one batch. Each row sees only
	// the pre-batch snapshot plus itself: 600, under the cap.
	csv := batchCSVHeader +
		"tx-001,ind-001,acc-001,Alpha Bank,600,2024-06-14T09:00:00Z\n" +
		"tx-002,ind-001,acc-001,Alpha Bank,600,2024-06-14T10:00:00Z\n"

	batch, err := p.ProcessBatch(ctx, "tenant-001", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if batch.Summary.ViolationCount != 0 {
		t.Fatalf("batch mates must not see each other, got %d violations", batch.Summary.ViolationCount)
	}

	// A later single record sees the committed batch: 1200 + 100.
	result, err := p.Evaluate(ctx, "tenant-001",
		rawRecord("tx-003", "ind-001", "acc-001", "100", "2024-06-14T15:00:00Z"), normalize.ModeBatch)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("post-batch record must see committed batch totals, got %d violations", len(result.Violations))
	}
	if result.Violations[0].Observed != 1300 {
		t.Errorf("expected observed 1300, got %f", result.Violations[0].Observed)
	}
}

func TestProcessBatchHeaderValidation(t *testing.T) {
	p := newTestPipeline(t, newMemStore(), nil, 0.1)
	ctx := context.Background()

	cases := []struct {
		name string
		csv  string
	}{
		{"WrongColumns", "a,b,c\nx,y,z\n"},
		{"WrongOrder", "individual_id,transaction_id,account_id,bank_name,amount,timestamp\n"},
		{"Empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.ProcessBatch(ctx, "tenant-001", strings.NewReader(tc.csv)); err == nil {
				t.Error("expected header validation to fail")
			}
		})
	}
}

func TestProcessBatchMissingTimestampRejected(t *testing.T) {
	p := newTestPipeline(t, newMemStore(), nil, 0.1)

	csv := batchCSVHeader + "tx-001,ind-001,acc-001,Alpha Bank,100,\n"
	batch, err := p.ProcessBatch(context.Background(), "tenant-001", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if batch.Rejected != 1 {
		t.Errorf("batch rows require timestamps, got %d rejected", batch.Rejected)
	}
}

func TestProcessBatchCompletedEvent(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(t, newMemStore(), bus, 0.1)

	csv := batchCSVHeader + "tx-001,ind-001,acc-001,Alpha Bank,100,2024-06-14T09:00:00Z\n"
	if _, err := p.ProcessBatch(context.Background(), "tenant-001", strings.NewReader(csv)); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if bus.published(domain.TopicBatchCompleted) != 1 {
		t.Error("expected batch.completed event")
	}
}

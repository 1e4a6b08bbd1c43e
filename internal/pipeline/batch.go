package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/normalize"
)

// batchHeader is the required CSV header, in order.
var batchHeader = []string{
	"transaction_id",
	"individual_id",
	"account_id",
	"bank_name",
	"amount",
	"timestamp",
}

// ProcessBatch evaluates a CSV batch. Every row is evaluated against
// the store state as of batch start: rows never observe their batch
// mates' totals, only their own amounts on top of the pre-batch
// snapshot. Appends happen after all rows are evaluated, so a window
// query during the batch never sees a partial batch.
//
// Invalid rows are rejected individually with a reason; valid rows
// proceed. Summary statistics cover accepted rows only.
func (p *Pipeline) ProcessBatch(ctx context.Context, tenantID string, r io.Reader) (*domain.BatchResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	batch := &domain.BatchResult{BatchID: uuid.New().String()}

	type accepted struct {
		rec    domain.TransactionRecord
		result *domain.EvaluationResult
	}
	var pending []accepted
	var results []*domain.EvaluationResult

	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			batch.Rows = append(batch.Rows, domain.RowStatus{
				Row:    row,
				Status: domain.RowRejected,
				Reason: fmt.Sprintf("malformed CSV row: %v", err),
			})
			batch.Rejected++
			continue
		}

		raw := domain.RawRecord{
			TransactionID: fields[0],
			IndividualID:  fields[1],
			AccountID:     fields[2],
			BankName:      fields[3],
			Amount:        fields[4],
			Timestamp:     fields[5],
		}

		rec, err := p.normalizer.Normalize(tenantID, raw, normalize.ModeBatch)
		if err != nil {
			batch.Rows = append(batch.Rows, domain.RowStatus{
				Row:    row,
				Status: domain.RowRejected,
				Reason: err.Error(),
			})
			batch.Rejected++
			continue
		}

		result, err := p.evaluateRecord(ctx, tenantID, &rec)
		if err != nil {
			return nil, fmt.Errorf("batch evaluation failed at row %d: %w", row, err)
		}

		batch.Rows = append(batch.Rows, domain.RowStatus{
			Row:           row,
			TransactionID: rec.ID,
			Status:        domain.RowAccepted,
		})
		batch.Accepted++
		pending = append(pending, accepted{rec: rec, result: result})
		results = append(results, result)
	}

	// Evaluation done against the pre-batch snapshot; now commit.
	for _, a := range pending {
		if err := p.persist(ctx, tenantID, &a.rec, a.result); err != nil {
			return nil, err
		}
		p.publish(ctx, tenantID, a.result)
	}

	batch.Summary = p.assembler.Summarize(results)
	p.publishBatchCompleted(ctx, tenantID, batch)

	return batch, nil
}

func validateHeader(header []string) error {
	if len(header) != len(batchHeader) {
		return fmt.Errorf("batch header has %d columns, expected %d (%s)",
			len(header), len(batchHeader), strings.Join(batchHeader, ","))
	}
	for i, want := range batchHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("batch header column %d is %q, expected %q", i, header[i], want)
		}
	}
	return nil
}

func (p *Pipeline) publishBatchCompleted(ctx context.Context, tenantID string, batch *domain.BatchResult) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"batchId":  batch.BatchID,
		"accepted": batch.Accepted,
		"rejected": batch.Rejected,
	})
	if err != nil {
		slog.Error("failed to marshal batch event", "batch_id", batch.BatchID, "error", err)
		return
	}
	p.emit(ctx, tenantID, domain.TopicBatchCompleted, payload)
}

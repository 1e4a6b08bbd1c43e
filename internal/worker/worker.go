// Package worker provides async record processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/normalize"
	"github.com/kestrelhq/kestrel/internal/pipeline"
)

// Worker evaluates submitted records asynchronously from the EventBus.
type Worker struct {
	bus  domain.EventBus
	pipe *pipeline.Pipeline

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global fallback)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, pipe *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		pipe:   pipe,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing submitted records for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRecordSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRecordSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processRecord(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicRecordSubmitted,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRecord(ctx, msg.TenantID, msg)
}

// SubmittedRecord is the message payload for async record evaluation.
type SubmittedRecord struct {
	TenantID string           `json:"tenantId"`
	Record   domain.RawRecord `json:"record"`
}

// processRecord evaluates one submitted record through the pipeline.
// Validation failures are terminal: the row is logged and dropped, not
// retried.
func (w *Worker) processRecord(ctx context.Context, tenantID string, msg *domain.Message) error {
	var submitted SubmittedRecord
	if err := json.Unmarshal(msg.Payload, &submitted); err != nil {
		slog.Error("failed to parse submitted record",
			"tenant_id", tenantID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if submitted.TenantID != "" {
		tenantID = submitted.TenantID
	}

	result, err := w.pipe.Evaluate(ctx, tenantID, submitted.Record, normalize.ModeBatch)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("submitted record rejected",
				"tenant_id", tenantID,
				"message_id", msg.ID,
				"reason", verr.Error(),
			)
			return nil
		}
		slog.Error("async evaluation failed",
			"tenant_id", tenantID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("record evaluated",
		"tenant_id", tenantID,
		"tx_id", result.Record.ID,
		"status", result.Status,
		"violations", len(result.Violations),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
}

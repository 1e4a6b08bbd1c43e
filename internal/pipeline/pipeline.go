// Package pipeline orchestrates the evaluation stages: normalize,
// aggregate, limit check, fraud score, assemble, persist, publish.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kestrelhq/kestrel/internal/aggregate"
	"github.com/kestrelhq/kestrel/internal/assemble"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/limits"
	"github.com/kestrelhq/kestrel/internal/normalize"
	"github.com/kestrelhq/kestrel/internal/scoring"
)

// Pipeline evaluates records end to end. Aggregates are computed from
// the store state as of evaluation start; the record under evaluation
// is folded into its own windows before limit checks, so a record can
// violate a window limit on the transaction that crosses it.
type Pipeline struct {
	normalizer *normalize.Normalizer
	engine     *aggregate.Engine
	evaluator  *limits.Evaluator
	scorer     *scoring.Adapter
	assembler  *assemble.Assembler

	store domain.Store
	bus   domain.EventBus
}

// New wires the pipeline stages together. bus may be nil.
func New(
	normalizer *normalize.Normalizer,
	engine *aggregate.Engine,
	evaluator *limits.Evaluator,
	scorer *scoring.Adapter,
	store domain.Store,
	bus domain.EventBus,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		engine:     engine,
		evaluator:  evaluator,
		scorer:     scorer,
		assembler:  assemble.New(),
		store:      store,
		bus:        bus,
	}
}

// Evaluate runs one raw record through every stage and persists both
// the record and its evaluation. Validation failures return a
// *domain.ValidationError and leave no trace in the store.
func (p *Pipeline) Evaluate(ctx context.Context, tenantID string, raw domain.RawRecord, mode normalize.Mode) (*domain.EvaluationResult, error) {
	rec, err := p.normalizer.Normalize(tenantID, raw, mode)
	if err != nil {
		return nil, err
	}

	result, err := p.evaluateRecord(ctx, tenantID, &rec)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, tenantID, &rec, result); err != nil {
		return nil, err
	}

	p.publish(ctx, tenantID, result)
	return result, nil
}

// evaluateRecord runs the post-normalization stages against the current
// store snapshot. It does not write.
func (p *Pipeline) evaluateRecord(ctx context.Context, tenantID string, rec *domain.TransactionRecord) (*domain.EvaluationResult, error) {
	aggs, err := p.engine.AggregateAll(ctx, tenantID, rec.IndividualID, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed for %s: %w", rec.ID, err)
	}

	// The record sees itself in its own window totals.
	aggs = aggregate.Apply(aggs, rec)

	violations := p.evaluator.Evaluate(rec, aggs)
	score := p.scorer.Score(ctx, rec, aggs)

	return p.assembler.Assemble(rec, violations, score), nil
}

func (p *Pipeline) persist(ctx context.Context, tenantID string, rec *domain.TransactionRecord, result *domain.EvaluationResult) error {
	if err := p.store.SaveEvaluation(ctx, tenantID, result); err != nil {
		return fmt.Errorf("failed to save evaluation for %s: %w", rec.ID, err)
	}
	if err := p.store.AppendTransaction(ctx, tenantID, rec); err != nil {
		return fmt.Errorf("failed to append transaction %s: %w", rec.ID, err)
	}
	p.engine.Invalidate(ctx, tenantID, rec)
	return nil
}

// publish emits pipeline events. Publishing is best effort: a bus
// failure is logged, never surfaced to the caller.
func (p *Pipeline) publish(ctx context.Context, tenantID string, result *domain.EvaluationResult) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal evaluation event", "eval_id", result.ID, "error", err)
		return
	}

	p.emit(ctx, tenantID, domain.TopicRecordAccepted, payload)

	if len(result.Violations) > 0 {
		p.emit(ctx, tenantID, domain.TopicViolationDetected, payload)
	}
	if result.Score.Decision == domain.DecisionFlag {
		p.emit(ctx, tenantID, domain.TopicFraudFlagged, payload)
	}
}

func (p *Pipeline) emit(ctx context.Context, tenantID, topic string, payload []byte) {
	if err := p.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}

// ReloadLimits fetches the tenant's limit configs from the store and
// installs them in the evaluator.
func (p *Pipeline) ReloadLimits(ctx context.Context, tenantID string) (int, error) {
	configs, err := p.store.ListLimitConfigs(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list limit configs: %w", err)
	}
	if err := p.evaluator.Load(configs); err != nil {
		return 0, fmt.Errorf("failed to load limit configs: %w", err)
	}
	return p.evaluator.LimitCount(), nil
}

// Evaluator exposes the limit evaluator for policy management.
func (p *Pipeline) Evaluator() *limits.Evaluator {
	return p.evaluator
}

// Summarize computes summary statistics over evaluation results.
func (p *Pipeline) Summarize(results []*domain.EvaluationResult) domain.SummaryStats {
	return p.assembler.Summarize(results)
}

// Package limits evaluates transactions and window aggregates against
// the configured limit policy.
package limits

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/kestrelhq/kestrel/internal/domain"
)

// Options are the evaluator's policy knobs. Thresholds live in
// LimitConfig rows; these control severity and circumvention mapping.
type Options struct {
	// SeverityRatio: critical when observed >= threshold * (1 + ratio).
	SeverityRatio float64

	// CircumventionRatio: a window total at or above this fraction of
	// the limit while multiple accounts were active is reported as
	// potential circumvention.
	CircumventionRatio float64
}

// DefaultOptions mirror the legacy policy: critical at 50% overage,
// circumvention from 80% of the limit.
func DefaultOptions() Options {
	return Options{SeverityRatio: 0.5, CircumventionRatio: 0.8}
}

type compiledLimit struct {
	cfg     *domain.LimitConfig
	program cel.Program // nil for plain threshold limits
}

// Evaluator applies the loaded limit policy to transactions. Limits are
// compiled on load; Load replaces the whole set atomically, which gives
// hot-reload without a restart.
type Evaluator struct {
	mu     sync.RWMutex
	env    *cel.Env
	opts   Options
	limits []*compiledLimit
}

// NewEvaluator creates an evaluator with an empty policy.
func NewEvaluator(opts Options) (*Evaluator, error) {
	if opts.SeverityRatio <= 0 {
		opts.SeverityRatio = 0.5
	}
	if opts.CircumventionRatio <= 0 {
		opts.CircumventionRatio = 0.8
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour_of_day", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("window_total", cel.DoubleType),
		cel.Variable("window_count", cel.IntType),
		cel.Variable("distinct_accounts", cel.IntType),
		cel.Variable("multi_account", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env, opts: opts}, nil
}

// Validate checks a single limit config without loading it.
func (ev *Evaluator) Validate(cfg *domain.LimitConfig) error {
	_, err := ev.compile(cfg)
	return err
}

// Load compiles and installs the active policy, replacing any previous
// set. A single invalid entry fails the whole load: configuration
// errors must abort the run before any records are processed.
func (ev *Evaluator) Load(configs []*domain.LimitConfig) error {
	compiled := make([]*compiledLimit, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		cl, err := ev.compile(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, cl)
	}

	ev.mu.Lock()
	ev.limits = compiled
	ev.mu.Unlock()
	return nil
}

// LimitCount returns the number of loaded limits.
func (ev *Evaluator) LimitCount() int {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return len(ev.limits)
}

// Configs returns the loaded limit configurations in load order.
func (ev *Evaluator) Configs() []*domain.LimitConfig {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	out := make([]*domain.LimitConfig, len(ev.limits))
	for i, cl := range ev.limits {
		out[i] = cl.cfg
	}
	return out
}

// Evaluate compares the record and its aggregates against every loaded
// limit. Output order matches the loaded config order; comparisons are
// strict (observed == threshold is never a violation); no deduplication
// and no early exit.
func (ev *Evaluator) Evaluate(rec *domain.TransactionRecord, aggs []domain.AggregateResult) []domain.ViolationRecord {
	ev.mu.RLock()
	limits := ev.limits
	ev.mu.RUnlock()

	var violations []domain.ViolationRecord
	now := time.Now().UTC()

	for _, cl := range limits {
		if v := ev.evaluateOne(cl, rec, aggs, now); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}

func (ev *Evaluator) evaluateOne(cl *compiledLimit, rec *domain.TransactionRecord, aggs []domain.AggregateResult, now time.Time) *domain.ViolationRecord {
	cfg := cl.cfg

	if cl.program != nil {
		return ev.evaluateExpression(cl, rec, aggs, now)
	}

	switch cfg.Scope {
	case domain.ScopePerTransaction:
		if rec.Amount > cfg.ThresholdAmount {
			return ev.violation(cfg, rec, domain.KindLimitExceeded, rec.Amount, cfg.ThresholdAmount, now)
		}

	case domain.ScopePerWindow:
		agg := byKind(aggs, cfg.Window)
		if agg == nil {
			return nil
		}
		if agg.TotalAmount > cfg.ThresholdAmount {
			return ev.violation(cfg, rec, domain.KindLimitExceeded, agg.TotalAmount, cfg.ThresholdAmount, now)
		}
		if cfg.ThresholdCount > 0 && agg.TransactionCount > cfg.ThresholdCount {
			return ev.violation(cfg, rec, domain.KindCountExceeded, float64(agg.TransactionCount), float64(cfg.ThresholdCount), now)
		}
		if agg.MultiAccount && agg.TotalAmount >= cfg.ThresholdAmount*ev.opts.CircumventionRatio {
			v := ev.violation(cfg, rec, domain.KindCircumvention, agg.TotalAmount, cfg.ThresholdAmount, now)
			v.Severity = domain.SeverityWarning
			v.Reason = fmt.Sprintf("%s: %.2f across %d accounts approaches %s limit %.2f",
				cfg.Name, agg.TotalAmount, len(agg.DistinctAccountIDs), cfg.Window, cfg.ThresholdAmount)
			return v
		}
	}
	return nil
}

func (ev *Evaluator) violation(cfg *domain.LimitConfig, rec *domain.TransactionRecord, kind domain.ViolationKind, observed, threshold float64, now time.Time) *domain.ViolationRecord {
	return &domain.ViolationRecord{
		ID:            uuid.New().String(),
		TransactionID: rec.ID,
		LimitID:       cfg.ID,
		Kind:          kind,
		Observed:      observed,
		Threshold:     threshold,
		Severity:      ev.severity(observed, threshold),
		Reason:        fmt.Sprintf("%s: observed %.2f exceeds threshold %.2f", cfg.Name, observed, threshold),
		DetectedAt:    now,
	}
}

func (ev *Evaluator) severity(observed, threshold float64) domain.Severity {
	if observed >= threshold*(1+ev.opts.SeverityRatio) {
		return domain.SeverityCritical
	}
	return domain.SeverityWarning
}

func byKind(aggs []domain.AggregateResult, kind domain.WindowKind) *domain.AggregateResult {
	for i := range aggs {
		if aggs[i].Kind == kind {
			return &aggs[i]
		}
	}
	return nil
}

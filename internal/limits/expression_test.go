package limits

import (
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func exprLimit(id, expression string) *domain.LimitConfig {
	return &domain.LimitConfig{
		ID:         id,
		Name:       "custom policy",
		Scope:      domain.ScopePerTransaction,
		Expression: expression,
		Enabled:    true,
	}
}

func TestExpressionLimitFires(t *testing.T) {
	ev := newTestEvaluator(t, exprLimit("expr-001", "amount > 500.0 && hour_of_day >= 22"))

	late := testRecord(900)
	late.Timestamp = time.Date(2024, 6, 14, 23, 10, 0, 0, time.UTC)

	violations := ev.Evaluate(late, nil)
	if len(violations) != 1 {
		t.Fatalf("expected one violation, got %d", len(violations))
	}
	if violations[0].Kind != domain.KindExpression {
		t.Errorf("expected expression kind, got %s", violations[0].Kind)
	}

	// Same amount during business hours: no violation.
	if violations := ev.Evaluate(testRecord(900), nil); len(violations) != 0 {
		t.Errorf("expression must not fire at 13:00, got %d", len(violations))
	}
}

func TestExpressionSeesWindowAggregates(t *testing.T) {
	ev := newTestEvaluator(t, exprLimit("expr-001", "multi_account && window_total > 800.0"))

	aggs := []domain.AggregateResult{dailyAgg(900, 3, "acc-001", "acc-002")}
	if violations := ev.Evaluate(testRecord(100), aggs); len(violations) != 1 {
		t.Fatalf("expected expression over aggregates to fire, got %d", len(violations))
	}

	single := []domain.AggregateResult{dailyAgg(900, 3, "acc-001")}
	if violations := ev.Evaluate(testRecord(100), single); len(violations) != 0 {
		t.Errorf("multi_account=false must not fire, got %d", len(violations))
	}
}

func TestExpressionRuntimeErrorDoesNotFire(t *testing.T) {
	// Compiles fine, but divides by zero when the window is empty. The
	// limit must not fire and must not fail the evaluation.
	ev := newTestEvaluator(t, exprLimit("expr-div", "100 / window_count >= 1"))

	if violations := ev.Evaluate(testRecord(900), nil); len(violations) != 0 {
		t.Errorf("runtime evaluation error must suppress the limit, got %d violations", len(violations))
	}

	// With a populated window the same expression evaluates normally.
	aggs := []domain.AggregateResult{dailyAgg(900, 3, "acc-001")}
	if violations := ev.Evaluate(testRecord(900), aggs); len(violations) != 1 {
		t.Errorf("expected expression to fire with window_count=3, got %d violations", len(violations))
	}
}

func TestExpressionMustCompile(t *testing.T) {
	ev, err := NewEvaluator(DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}

	bad := exprLimit("expr-bad", "this is not CEL !!!")
	if err := ev.Load([]*domain.LimitConfig{bad}); err == nil {
		t.Error("expected load to fail on invalid CEL")
	}
}

func TestExpressionMustReturnBool(t *testing.T) {
	ev, err := NewEvaluator(DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}

	numeric := exprLimit("expr-num", "amount * 2.0")
	if err := ev.Load([]*domain.LimitConfig{numeric}); err == nil {
		t.Error("expected load to reject non-bool expression")
	}
}

func TestValidateDoesNotLoad(t *testing.T) {
	ev, err := NewEvaluator(DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}

	if err := ev.Validate(exprLimit("expr-001", "amount > 10.0")); err != nil {
		t.Errorf("valid config must validate: %v", err)
	}
	if ev.LimitCount() != 0 {
		t.Errorf("Validate must not install limits, got %d", ev.LimitCount())
	}
}

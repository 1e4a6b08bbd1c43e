package limits

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"
	"github.com/kestrelhq/kestrel/internal/domain"
)

// compile validates a limit config and, when it carries a CEL
// expression, compiles it. Expressions must evaluate to bool.
func (ev *Evaluator) compile(cfg *domain.LimitConfig) (*compiledLimit, error) {
	if cfg == nil {
		return nil, fmt.Errorf("limit config is required")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("limit config requires an id")
	}

	switch cfg.Scope {
	case domain.ScopePerTransaction:
	case domain.ScopePerWindow:
		switch cfg.Window {
		case domain.WindowDaily, domain.WindowWeekly, domain.WindowMonthly:
		default:
			return nil, fmt.Errorf("limit %s: per_window scope requires a window kind", cfg.ID)
		}
	default:
		return nil, fmt.Errorf("limit %s: unsupported scope %q", cfg.ID, cfg.Scope)
	}

	if cfg.Expression == "" {
		if cfg.ThresholdAmount < 0 {
			return nil, fmt.Errorf("limit %s: threshold amount must be non-negative", cfg.ID)
		}
		return &compiledLimit{cfg: cfg}, nil
	}

	ast, issues := ev.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile limit %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("limit %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := ev.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for limit %s: %w", cfg.ID, err)
	}

	return &compiledLimit{cfg: cfg, program: program}, nil
}

// evaluateExpression runs a CEL limit. The activation exposes the
// record plus the aggregates of the limit's window (daily when unset).
func (ev *Evaluator) evaluateExpression(cl *compiledLimit, rec *domain.TransactionRecord, aggs []domain.AggregateResult, now time.Time) *domain.ViolationRecord {
	window := cl.cfg.Window
	if window == "" {
		window = domain.WindowDaily
	}

	var total float64
	var count, accounts int
	multi := false
	if agg := byKind(aggs, window); agg != nil {
		total = agg.TotalAmount
		count = agg.TransactionCount
		accounts = len(agg.DistinctAccountIDs)
		multi = agg.MultiAccount
	}

	ts := rec.Timestamp.UTC()
	activation := map[string]any{
		"amount":            rec.Amount,
		"hour_of_day":       ts.Hour(),
		"day_of_week":       (int(ts.Weekday()) + 6) % 7,
		"window_total":      total,
		"window_count":      count,
		"distinct_accounts": accounts,
		"multi_account":     multi,
	}

	out, _, err := cl.program.Eval(activation)
	if err != nil {
		// A runtime evaluation error on a compiled expression is not a
		// violation; the limit does not fire, but it must not fail
		// invisibly either.
		slog.Warn("expression limit evaluation failed",
			"limit_id", cl.cfg.ID,
			"tx_id", rec.ID,
			"error", err,
		)
		return nil
	}

	if out != types.True {
		return nil
	}

	return &domain.ViolationRecord{
		ID:            uuid.New().String(),
		TransactionID: rec.ID,
		LimitID:       cl.cfg.ID,
		Kind:          domain.KindExpression,
		Observed:      rec.Amount,
		Threshold:     cl.cfg.ThresholdAmount,
		Severity:      domain.SeverityWarning,
		Reason:        fmt.Sprintf("%s: expression matched", cl.cfg.Name),
		DetectedAt:    now,
	}
}

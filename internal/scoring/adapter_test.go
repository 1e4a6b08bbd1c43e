package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

func scoringRecord(amount float64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:           "tx-001",
		TenantID:     "tenant-001",
		IndividualID: "ind-001",
		AccountID:    "acc-001",
		BankName:     "Alpha Bank",
		Amount:       amount,
		Timestamp:    time.Date(2024, 6, 14, 13, 0, 0, 0, time.UTC), // a Friday
	}
}

func windowAggs() []domain.AggregateResult {
	return []domain.AggregateResult{
		{
			Kind:               domain.WindowDaily,
			TotalAmount:        900,
			TransactionCount:   3,
			DistinctAccountIDs: []string{"acc-001", "acc-002"},
			MultiAccount:       true,
		},
		{Kind: domain.WindowWeekly, TotalAmount: 4200, TransactionCount: 9},
		{Kind: domain.WindowMonthly, TotalAmount: 8100, TransactionCount: 20},
	}
}

func TestBuildVectorSchemaV1(t *testing.T) {
	vec := BuildVector(scoringRecord(250), windowAggs())

	if len(vec) != len(SchemaV1) {
		t.Fatalf("vector length %d does not match schema length %d", len(vec), len(SchemaV1))
	}

	want := []float64{250, 13, 4, 900, 3, 4200, 9, 8100, 20, 2, 1}
	for i, w := range want {
		if vec[i] != w {
			t.Errorf("feature %s: expected %f, got %f", SchemaV1[i], w, vec[i])
		}
	}
}

func TestBuildVectorMissingAggregates(t *testing.T) {
	vec := BuildVector(scoringRecord(250), nil)

	// Window features all zero, record features still populated.
	for i := 3; i < len(vec); i++ {
		if vec[i] != 0 {
			t.Errorf("feature %s: expected 0 without aggregates, got %f", SchemaV1[i], vec[i])
		}
	}
	if vec[0] != 250 {
		t.Errorf("amount must come from the record, got %f", vec[0])
	}
}

func TestDecisionThreshold(t *testing.T) {
	cases := []struct {
		name        string
		probability float64
		threshold   float64
		want        domain.Decision
	}{
		{"AboveThreshold", 0.9, 0.5, domain.DecisionFlag},
		{"AtThreshold", 0.5, 0.5, domain.DecisionFlag},
		{"BelowThreshold", 0.49, 0.5, domain.DecisionClear},
		{"LoweredThreshold", 0.35, 0.3, domain.DecisionFlag},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := NewStaticScorer(tc.probability)
			adapter := NewAdapter(scorer, domain.ScoringConfig{DecisionThreshold: tc.threshold})

			score := adapter.Score(context.Background(), scoringRecord(100), nil)
			if score.Decision != tc.want {
				t.Errorf("probability %f vs threshold %f: expected %s, got %s",
					tc.probability, tc.threshold, tc.want, score.Decision)
			}
			if score.Degraded {
				t.Error("healthy scorer must not degrade")
			}
			if score.Probability != tc.probability {
				t.Errorf("threshold must not alter the probability, got %f", score.Probability)
			}
		})
	}
}

func TestScoreDegradesOnScorerFailure(t *testing.T) {
	scorer := NewStaticScorer(0.9)
	scorer.Err = domain.ErrScoringUnavailable
	adapter := NewAdapter(scorer, domain.ScoringConfig{DecisionThreshold: 0.5})

	score := adapter.Score(context.Background(), scoringRecord(100), nil)
	if !score.Degraded {
		t.Error("scorer failure must set the degraded flag")
	}
	if score.Decision != domain.DecisionClear {
		t.Errorf("degraded scores are clear, got %s", score.Decision)
	}
	if score.Probability != 0 {
		t.Errorf("degraded scores carry no probability, got %f", score.Probability)
	}
}

func TestScoreDegradesOnTimeout(t *testing.T) {
	scorer := &slowScorer{delay: 100 * time.Millisecond}
	adapter := NewAdapter(scorer, domain.ScoringConfig{
		DecisionThreshold: 0.5,
		Timeout:           10 * time.Millisecond,
	})

	score := adapter.Score(context.Background(), scoringRecord(100), nil)
	if !score.Degraded {
		t.Error("scorer timeout must set the degraded flag")
	}
	if score.Decision != domain.DecisionClear {
		t.Errorf("degraded scores are clear, got %s", score.Decision)
	}
}

func TestScoreDegradesOnBadProbability(t *testing.T) {
	scorer := NewStaticScorer(1.7)
	adapter := NewAdapter(scorer, domain.ScoringConfig{DecisionThreshold: 0.5})

	score := adapter.Score(context.Background(), scoringRecord(100), nil)
	if !score.Degraded {
		t.Error("out-of-range probability must degrade")
	}
}

func TestValidateSchema(t *testing.T) {
	adapter := NewAdapter(NewStaticScorer(0.1), domain.ScoringConfig{})
	if err := adapter.ValidateSchema(context.Background()); err != nil {
		t.Fatalf("matching schema must validate: %v", err)
	}

	mismatched := &slowScorer{schema: []string{"amount", "something_else"}}
	adapter = NewAdapter(mismatched, domain.ScoringConfig{})
	err := adapter.ValidateSchema(context.Background())
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
	var shapeErr *domain.FeatureShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected FeatureShapeMismatchError, got %T", err)
	}
	if len(shapeErr.Got) != 2 {
		t.Errorf("mismatch error must carry the offending schema, got %v", shapeErr.Got)
	}
}

type slowScorer struct {
	delay  time.Duration
	schema []string
}

func (s *slowScorer) Predict(ctx context.Context, features []float64) (float64, error) {
	select {
	case <-time.After(s.delay):
		return 0.9, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *slowScorer) Schema(ctx context.Context) ([]string, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	return SchemaV1, nil
}

func (s *slowScorer) ModelVersion() string { return "slow-v1" }

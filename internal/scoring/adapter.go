// Package scoring integrates the external fraud scoring collaborator:
// feature preparation, model invocation, and probability thresholding.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Adapter builds feature vectors, invokes the scoring collaborator, and
// maps probabilities to decisions. The model itself is opaque.
type Adapter struct {
	scorer    domain.Scorer
	threshold float64
	timeout   time.Duration
}

// NewAdapter creates a scoring adapter around a collaborator.
func NewAdapter(scorer domain.Scorer, cfg domain.ScoringConfig) *Adapter {
	threshold := cfg.DecisionThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Adapter{
		scorer:    scorer,
		threshold: threshold,
		timeout:   timeout,
	}
}

// ValidateSchema verifies the collaborator expects exactly SchemaV1, in
// order. A mismatch is fatal for the whole run: it indicates a broken
// scoring contract, so it must be caught before any records flow.
func (a *Adapter) ValidateSchema(ctx context.Context) error {
	got, err := a.scorer.Schema(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch scorer schema: %w", err)
	}

	if !schemaEqual(SchemaV1, got) {
		return &domain.FeatureShapeMismatchError{
			ModelVersion: a.scorer.ModelVersion(),
			Expected:     SchemaV1,
			Got:          got,
		}
	}
	return nil
}

// Score evaluates one record. On collaborator failure or timeout the
// result degrades to a clear decision with the degraded flag set; the
// record always flows through the rest of the pipeline.
func (a *Adapter) Score(ctx context.Context, rec *domain.TransactionRecord, aggs []domain.AggregateResult) domain.FraudScore {
	score := domain.FraudScore{
		TransactionID: rec.ID,
		ModelVersion:  a.scorer.ModelVersion(),
	}

	features := BuildVector(rec, aggs)

	predictCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	probability, err := a.scorer.Predict(predictCtx, features)
	if err != nil || probability < 0 || probability > 1 {
		if err == nil {
			err = fmt.Errorf("probability %f outside [0,1]", probability)
		}
		slog.Warn("scoring degraded",
			"tx_id", rec.ID,
			"model_version", score.ModelVersion,
			"error", err,
		)
		score.Decision = domain.DecisionClear
		score.Degraded = true
		return score
	}

	score.Probability = probability
	score.Decision = domain.DecisionClear
	if probability >= a.threshold {
		score.Decision = domain.DecisionFlag
	}
	return score
}

// DecisionThreshold returns the configured flag threshold.
func (a *Adapter) DecisionThreshold() float64 {
	return a.threshold
}

func schemaEqual(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

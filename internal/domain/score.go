package domain

import (
	"context"
)

// Decision maps a fraud probability to an action.
type Decision string

const (
	DecisionFlag  Decision = "flag"
	DecisionClear Decision = "clear"
)

// FraudScore is the model output for one transaction. Produced once per
// evaluation; stale if the record or policy changes and must then be
// recomputed, not patched.
type FraudScore struct {
	TransactionID string   `json:"transactionId"`
	Probability   float64  `json:"probability"`
	Decision      Decision `json:"decision"`
	ModelVersion  string   `json:"modelVersion"`

	// Degraded is set when the scoring collaborator was unreachable and
	// the pipeline fell back to a clear decision.
	Degraded bool `json:"scoringDegraded,omitempty"`
}

// Scorer is the external, opaque scoring collaborator. The pipeline
// builds the feature vector; the collaborator owns the model.
// Predict must return a probability in [0, 1] and be deterministic for
// identical features and model version.
type Scorer interface {
	// Predict scores one feature vector. Blocking; callers bound it
	// with a context timeout.
	Predict(ctx context.Context, features []float64) (float64, error)

	// Schema returns the ordered feature names the model expects.
	Schema(ctx context.Context) ([]string, error)

	// ModelVersion identifies the deployed model artifact.
	ModelVersion() string
}

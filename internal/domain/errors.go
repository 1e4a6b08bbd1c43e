package domain

import (
	"errors"
	"fmt"
)

// ErrScoringUnavailable marks a transient scoring collaborator failure.
// The pipeline degrades to a clear decision and continues; it never
// drops an evaluation because of it.
var ErrScoringUnavailable = errors.New("scoring collaborator unavailable")

// ValidationKind identifies why a raw record was rejected.
type ValidationKind string

const (
	ValidationMissingField     ValidationKind = "missing_field"
	ValidationInvalidAmount    ValidationKind = "invalid_amount"
	ValidationMissingTimestamp ValidationKind = "missing_timestamp"
	ValidationInvalidTimestamp ValidationKind = "invalid_timestamp"
)

// ValidationError rejects a single malformed record. Batch processing
// collects these per-row and continues; it never aborts the batch.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s (%s)", e.Kind, e.Field)
	}
	return fmt.Sprintf("validation failed: %s", e.Kind)
}

// FeatureShapeMismatchError means the configured feature schema does not
// match what the scoring collaborator expects. Fatal for the whole run:
// it indicates a broken scoring contract, so no records are processed.
type FeatureShapeMismatchError struct {
	ModelVersion string
	Expected     []string
	Got          []string
}

func (e *FeatureShapeMismatchError) Error() string {
	return fmt.Sprintf("feature shape mismatch for model %s: expected %v, got %v",
		e.ModelVersion, e.Expected, e.Got)
}

package scoring

import (
	"context"
)

// StaticScorer returns a fixed probability for every vector. It backs
// local development and tests where no model service is running.
type StaticScorer struct {
	Probability float64
	Version     string
	Err         error
}

// NewStaticScorer creates a scorer with a constant probability.
func NewStaticScorer(probability float64) *StaticScorer {
	return &StaticScorer{Probability: probability, Version: "static-v1"}
}

func (s *StaticScorer) Predict(ctx context.Context, features []float64) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Probability, nil
}

func (s *StaticScorer) Schema(ctx context.Context) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return SchemaV1, nil
}

func (s *StaticScorer) ModelVersion() string {
	return s.Version
}

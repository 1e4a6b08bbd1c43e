package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// HTTPScorer talks to a remote model service over JSON/HTTP:
//
//	GET  {base}/schema  -> {"modelVersion": "...", "features": [...]}
//	POST {base}/predict -> {"probability": 0.42}
//
// Any transport or protocol failure surfaces as ErrScoringUnavailable
// so the adapter can degrade instead of dropping the record.
type HTTPScorer struct {
	baseURL      string
	client       *http.Client
	modelVersion string
}

// NewHTTPScorer creates a scorer against a model service. The model
// version is resolved lazily from the schema endpoint on first use if
// not supplied.
func NewHTTPScorer(baseURL, modelVersion string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: timeout},
		modelVersion: modelVersion,
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

type schemaResponse struct {
	ModelVersion string   `json:"modelVersion"`
	Features     []string `json:"features"`
}

// Predict scores one feature vector.
func (s *HTTPScorer) Predict(ctx context.Context, features []float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: predict returned %d", domain.ErrScoringUnavailable, resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("%w: probability %f outside [0,1]", domain.ErrScoringUnavailable, out.Probability)
	}

	return out.Probability, nil
}

// Schema returns the ordered feature names the model expects.
func (s *HTTPScorer) Schema(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/schema", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: schema returned %d", domain.ErrScoringUnavailable, resp.StatusCode)
	}

	var out schemaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}

	if s.modelVersion == "" {
		s.modelVersion = out.ModelVersion
	}
	return out.Features, nil
}

// ModelVersion identifies the deployed model artifact.
func (s *HTTPScorer) ModelVersion() string {
	return s.modelVersion
}

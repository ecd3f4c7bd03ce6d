// Package predictor provides scoring.Predictor implementations: a local
// matrix factorization model and a remote HTTP endpoint.
package predictor

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/validation"
)

// Vector is the learned bias and latent factors of one user or item.
type Vector struct {
	Bias    float64   `json:"bias"`
	Factors []float64 `json:"factors"`
}

// FactorFile is the exported model format.
type FactorFile struct {
	Version    string            `json:"version" validate:"required"`
	Dimensions int               `json:"dimensions" validate:"gt=0"`
	GlobalBias float64           `json:"global_bias"`
	Users      map[string]Vector `json:"users" validate:"required"`
	Items      map[string]Vector `json:"items" validate:"required"`
}

// FactorOption applies a configuration option to the FactorModel.
type FactorOption func(*FactorModel)

// WithColdStart scores unknown users and movies with zero factors instead of
// failing.
func WithColdStart(enabled bool) FactorOption {
	return func(m *FactorModel) {
		m.coldStart = enabled
	}
}

// FactorModel predicts global + b_u + b_i + <p_u, q_i>. It is immutable and
// safe for concurrent use.
type FactorModel struct {
	file      FactorFile
	coldStart bool
}

// LoadFactorModel reads a FactorFile from path.
func LoadFactorModel(ctx context.Context, path string, opts ...FactorOption) (*FactorModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadModel, err)
	}
	var f FactorFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidModel, path, err)
	}
	return NewFactorModel(f, opts...)
}

// NewFactorModel validates f and wraps it as a predictor.
func NewFactorModel(f FactorFile, opts ...FactorOption) (*FactorModel, error) { //nolint:gocritic // hugeParam: built once
	if err := validation.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	for kind, vs := range map[string]map[string]Vector{"user": f.Users, "item": f.Items} {
		for id, v := range vs {
			if len(v.Factors) != f.Dimensions {
				return nil, fmt.Errorf("%w: %s %s has %d factors, want %d", ErrInvalidModel, kind, id, len(v.Factors), f.Dimensions)
			}
		}
	}

	m := &FactorModel{file: f}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Predict implements scoring.Predictor.
func (m *FactorModel) Predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	u, ok := m.file.Users[q.UserID]
	if !ok && !m.coldStart {
		return 0, fmt.Errorf("%w: %s", scoring.ErrUnknownUser, q.UserID)
	}
	i, ok := m.file.Items[q.MovieID]
	if !ok && !m.coldStart {
		return 0, fmt.Errorf("%w: %s", scoring.ErrUnknownMovie, q.MovieID)
	}

	score := m.file.GlobalBias + u.Bias + i.Bias
	// Zero vectors of cold-start entries have no factors.
	for k := 0; k < len(u.Factors) && k < len(i.Factors); k++ {
		score += u.Factors[k] * i.Factors[k]
	}
	return score, nil
}

// ModelVersion returns the version of the loaded model.
func (m *FactorModel) ModelVersion() string {
	return m.file.Version
}

// Users returns the number of users the model knows.
func (m *FactorModel) Users() int {
	return len(m.file.Users)
}

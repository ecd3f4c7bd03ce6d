package scoring

import (
	"context"

	"github.com/okian/reel/internal/domain/model"
)

// Predictor returns the raw score of one rating query. Implementations must
// be safe for concurrent use and honor ctx cancellation.
type Predictor interface {
	Predict(ctx context.Context, q model.RatingQuery) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, q model.RatingQuery) (float64, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	return f(ctx, q)
}

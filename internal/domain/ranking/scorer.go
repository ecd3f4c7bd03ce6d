package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
)

// ProgressFunc is told how many of total queries have been scored so far.
type ProgressFunc func(done, total int)

// BatchScorer returns one raw score per query, index aligned with queries.
// Any failure fails the whole batch.
type BatchScorer interface {
	ScoreAll(ctx context.Context, queries []model.RatingQuery, onProgress ProgressFunc) ([]float64, error)
}

// SequentialScorer asks the predictor one query at a time, in order.
type SequentialScorer struct {
	predictor scoring.Predictor
	perCall   time.Duration
}

// NewSequentialScorer wraps p. A positive perCall bounds every predictor call.
func NewSequentialScorer(p scoring.Predictor, perCall time.Duration) *SequentialScorer {
	return &SequentialScorer{predictor: p, perCall: perCall}
}

// ScoreAll implements BatchScorer.
func (s *SequentialScorer) ScoreAll(ctx context.Context, queries []model.RatingQuery, onProgress ProgressFunc) ([]float64, error) {
	raw := make([]float64, len(queries))
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := s.predict(ctx, q)
		if err != nil {
			return nil, QueryError(q, err)
		}
		raw[i] = v
		if onProgress != nil {
			onProgress(i+1, len(queries))
		}
	}
	return raw, nil
}

func (s *SequentialScorer) predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	if s.perCall <= 0 {
		return s.predictor.Predict(ctx, q)
	}
	ctx, cancel := context.WithTimeout(ctx, s.perCall)
	defer cancel()
	return s.predictor.Predict(ctx, q)
}

// QueryError wraps err as a prediction failure of q.
func QueryError(q model.RatingQuery, err error) error {
	return fmt.Errorf("%w: user %s movie %s: %w", ErrPredictionFailed, q.UserID, q.MovieID, err)
}

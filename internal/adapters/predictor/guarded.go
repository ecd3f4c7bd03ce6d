package predictor

import (
	"context"
	"errors"
	"time"

	"github.com/okian/reel/internal/adapters/breaker"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/metrics"
)

// Versioned is implemented by predictors that know their model version.
type Versioned interface {
	ModelVersion() string
}

// Guarded decorates a predictor with metrics and, optionally, a circuit
// breaker. An open circuit surfaces as scoring.ErrPredictorUnavailable.
type Guarded struct {
	next    scoring.Predictor
	name    string
	breaker *breaker.Breaker[float64]
}

// NewGuarded wraps next. A nil breaker only adds metrics.
func NewGuarded(name string, next scoring.Predictor, b *breaker.Breaker[float64]) *Guarded {
	return &Guarded{next: next, name: name, breaker: b}
}

// Predict implements scoring.Predictor.
func (g *Guarded) Predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	start := time.Now()
	var (
		raw float64
		err error
	)
	if g.breaker != nil {
		raw, err = g.breaker.Execute(func() (float64, error) {
			return g.next.Predict(ctx, q)
		})
	} else {
		raw, err = g.next.Predict(ctx, q)
	}
	metrics.RecordPredictorLatency(g.name, float64(time.Since(start).Milliseconds()))

	if err != nil {
		kind := ErrorKind(err)
		metrics.RecordPredictorError(g.name, kind)
		if kind == "circuit_open" {
			return 0, errors.Join(scoring.ErrPredictorUnavailable, err)
		}
		return 0, err
	}
	return raw, nil
}

// ModelVersion returns the version of the wrapped predictor, if it has one.
func (g *Guarded) ModelVersion() string {
	if v, ok := g.next.(Versioned); ok {
		return v.ModelVersion()
	}
	return "unknown"
}

// BreakerState returns the circuit state, or "none" without a breaker.
func (g *Guarded) BreakerState() string {
	if g.breaker == nil {
		return "none"
	}
	return g.breaker.State()
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, scoring.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, scoring.ErrUnknownMovie):
		return "unknown_movie"
	case errors.Is(err, ErrRemoteStatus), errors.Is(err, ErrRemoteDecode):
		return "bad_response"
	default:
		return "other"
	}
}

// CountsAsSuccess reports whether err says nothing about the health of the
// predictor. Use it as breaker.Settings.IsSuccessful.
func CountsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, scoring.ErrUnknownUser) ||
		errors.Is(err, scoring.ErrUnknownMovie)
}

package scoring

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/reel/internal/domain/model"
)

// Option applies a configuration option to the StaticPredictor.
type Option func(*StaticPredictor)

// WithLatencyRange makes every call sleep for a random duration in [minLatency, maxLatency).
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *StaticPredictor) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithScore fixes the raw score returned for movieID regardless of the user.
func WithScore(movieID string, raw float64) Option {
	return func(s *StaticPredictor) {
		s.scores[movieID] = raw
	}
}

// WithDefaultScore sets the raw score for movies without an explicit score.
func WithDefaultScore(raw float64) Option {
	return func(s *StaticPredictor) {
		s.defaultScore = raw
	}
}

// WithFailure makes queries for movieID fail with err.
func WithFailure(movieID string, err error) Option {
	return func(s *StaticPredictor) {
		s.failures[movieID] = err
	}
}

// StaticPredictor answers from a fixed table, optionally simulating the
// latency of a remote model. It is the predictor of demos and tests.
type StaticPredictor struct {
	scores       map[string]float64
	failures     map[string]error
	defaultScore float64
	minLatency   time.Duration
	maxLatency   time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	calls int
}

// NewStaticPredictor creates a predictor that returns 0 for every query unless configured otherwise.
func NewStaticPredictor(opts ...Option) *StaticPredictor {
	s := &StaticPredictor{
		scores:   make(map[string]float64),
		failures: make(map[string]error),
		rng:      rand.New(rand.NewSource(42)), //nolint:gosec // deterministic latency jitter
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict implements Predictor.
func (s *StaticPredictor) Predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	s.mu.Lock()
	s.calls++
	var latency time.Duration
	if s.maxLatency > 0 {
		latency = s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	}
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	if err, ok := s.failures[q.MovieID]; ok {
		return 0, err
	}
	if raw, ok := s.scores[q.MovieID]; ok {
		return raw, nil
	}
	return s.defaultScore, nil
}

// ModelVersion identifies the fixed table.
func (s *StaticPredictor) ModelVersion() string {
	return "static"
}

// Calls returns how many predictions were requested.
func (s *StaticPredictor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

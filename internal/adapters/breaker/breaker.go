// Package breaker guards calls to remote dependencies with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/reel/pkg/logger"
	"github.com/okian/reel/pkg/metrics"
)

// ErrOpen is returned while the circuit rejects calls.
var ErrOpen = errors.New("circuit open")

// Settings configures a Breaker.
type Settings struct {
	Name string
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears the counts while closed. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the circuit stays open before trying again.
	Timeout time.Duration
	// The circuit opens once MinRequests calls were seen and at least
	// FailureRatio of them failed.
	MinRequests  uint32
	FailureRatio float64
	// IsSuccessful decides which errors do not count as failures. By
	// default only a nil error and context cancellation are successes.
	IsSuccessful func(err error) bool
}

// Breaker wraps a gobreaker.CircuitBreaker with logging and metrics.
type Breaker[T any] struct {
	cb     *gobreaker.CircuitBreaker[T]
	name   string
	logger logger.Logger
}

// New creates a closed breaker.
func New[T any](s Settings) *Breaker[T] {
	b := &Breaker[T]{
		name:   s.Name,
		logger: logger.Get().Named("breaker"),
	}

	isSuccessful := s.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}

	metrics.UpdateBreakerState(s.Name, stateToFloat(gobreaker.StateClosed))

	b.cb = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         s.Name,
		MaxRequests:  s.MaxRequests,
		Interval:     s.Interval,
		Timeout:      s.Timeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn(context.Background(), "circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateBreakerState(name, stateToFloat(to))
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	return b
}

// Execute runs fn unless the circuit is open.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.RecordBreakerRequest(b.name, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBreakerRequest(b.name, "rejected")
		var zero T
		return zero, errors.Join(ErrOpen, err)
	default:
		metrics.RecordBreakerRequest(b.name, "failure")
	}
	return res, err
}

// Name returns the breaker name.
func (b *Breaker[T]) Name() string {
	return b.name
}

// State returns "closed", "half-open" or "open".
func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}

// Counts returns the call counts of the current generation.
func (b *Breaker[T]) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Package worker scores batches of rating queries on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/reel/internal/adapters/mq/queue"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/logger"
	"github.com/okian/reel/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how jobs reach workers.
type Queue interface {
	Enqueue(ctx context.Context, j queue.Job) error
	Dequeue() <-chan queue.Job
}

// Worker processes score jobs until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker on top of a scoring.Predictor.
type InMemoryWorker struct {
	queue       Queue
	predictor   scoring.Predictor
	name        string
	callTimeout time.Duration
	processed   *atomic.Int64

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p scoring.Predictor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		predictor: p,
		name:      "worker",
		processed: new(atomic.Int64),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(job)
		}
	}
}

// process scores one job and always answers on its reply channel.
func (w *InMemoryWorker) process(job queue.Job) { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	res := model.ScoreResult{Index: job.Index}
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		// The batch already failed or its requester left.
		res.Err = err
	} else {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if w.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, w.callTimeout)
		}
		res.Raw, res.Err = w.predictor.Predict(callCtx, job.Query)
		cancel()
		w.processed.Add(1)
	}

	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "predict")
		w.logger.Debug(ctx, "prediction failed",
			logger.String("user_id", job.Query.UserID),
			logger.String("movie_id", job.Query.MovieID),
			logger.Error(res.Err),
		)
	}

	// Reply is buffered to the batch size, so this never blocks.
	job.Reply <- res
}

// Pool runs a fixed set of workers over one queue and scores whole batches.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed *atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. A workerCount below 1 selects a
// default based on the number of CPUs.
func NewPool(workerCount int, q Queue, p scoring.Predictor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		processed: new(atomic.Int64),
		logger:    logger.Get().Named("worker-pool"),
	}

	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, p, wopts...)
		w.processed = pool.processed
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many predictions the pool has made.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// ScoreAll implements ranking.BatchScorer. Queries are spread over the
// workers and the results are put back in query order.
func (p *Pool) ScoreAll(ctx context.Context, queries []model.RatingQuery, onProgress ranking.ProgressFunc) ([]float64, error) {
	if len(queries) == 0 {
		return []float64{}, nil
	}

	// Cancelling on return makes workers skip what is left of a failed batch.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan model.ScoreResult, len(queries))
	for i, q := range queries {
		err := p.queue.Enqueue(ctx, queue.Job{Ctx: ctx, Index: i, Query: q, Reply: replies})
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrQueueFull):
			return nil, fmt.Errorf("%w: %d of %d queries queued", ranking.ErrBackpressure, i, len(queries))
		case errors.Is(err, queue.ErrClosed):
			return nil, fmt.Errorf("%w: %w", scoring.ErrPredictorUnavailable, err)
		default:
			return nil, err
		}
	}

	raw := make([]float64, len(queries))
	for done := 1; done <= len(queries); done++ {
		select {
		case r := <-replies:
			if r.Err != nil {
				return nil, ranking.QueryError(queries[r.Index], r.Err)
			}
			raw[r.Index] = r.Raw
			if onProgress != nil {
				onProgress(done, len(queries))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return raw, nil
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}

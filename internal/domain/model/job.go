package model

import "context"

// ScoreJob asks a worker to score one query of a batch. Ctx is the batch
// context; a worker skips the prediction once it is done.
type ScoreJob struct {
	Ctx   context.Context //nolint:containedctx // jobs cross a queue boundary
	Index int
	Query RatingQuery
	Reply chan<- ScoreResult
}

// ScoreResult is the worker's answer for the job at Index.
type ScoreResult struct {
	Index int
	Raw   float64
	Err   error
}

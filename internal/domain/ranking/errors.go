package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrEmptyUser        = errors.New("empty user id")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrBackpressure     = errors.New("scoring queue full")
)

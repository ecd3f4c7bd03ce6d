package scoring

import "errors"

// Sentinel kinds for prediction errors.
var (
	ErrNonFiniteScore       = errors.New("non-finite raw score")
	ErrUnknownUser          = errors.New("unknown user")
	ErrUnknownMovie         = errors.New("unknown movie")
	ErrPredictorUnavailable = errors.New("predictor unavailable")
)

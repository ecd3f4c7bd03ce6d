package predictor

import "errors"

// Sentinel kinds for predictor errors.
var (
	ErrLoadModel    = errors.New("load model")
	ErrInvalidModel = errors.New("invalid model")
	ErrRemoteStatus = errors.New("unexpected predictor status")
	ErrRemoteDecode = errors.New("undecodable predictor response")
)

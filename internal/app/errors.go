package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrNoClassifier  = errors.New("no classifier configured")
	ErrQueueTooSmall = errors.New("queue cannot hold one batch")
)

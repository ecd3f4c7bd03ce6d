package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe          = errors.New("serve failed")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidImage   = errors.New("invalid image")
	ErrUploadTooLarge = errors.New("upload too large")
)

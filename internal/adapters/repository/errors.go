package repository

import "errors"

// Sentinel kinds for catalog and profile errors.
var (
	ErrLoadCatalog      = errors.New("load catalog")
	ErrMalformedCatalog = errors.New("malformed catalog")
	ErrMovieNotFound    = errors.New("movie not found")

	ErrLoadProfiles     = errors.New("load profiles")
	ErrMalformedProfile = errors.New("malformed profile")
	ErrProfileNotFound  = errors.New("profile not found")
)

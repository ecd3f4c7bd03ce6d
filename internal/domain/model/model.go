// Package model contains domain models passed between layers.
package model

import "time"

// Movie is one catalog record.
type Movie struct {
	ID    int
	Title string
}

// RatingQuery is the predictor input for one (user, movie) pair.
type RatingQuery struct {
	UserID  string
	MovieID string
}

// RankedCandidate pairs a catalog movie with its normalized score.
type RankedCandidate struct {
	MovieID         int     `json:"movieId"`
	NormalizedScore float64 `json:"normalizedScore"`
}

// WatchedMovie is one entry of a profile's viewing history.
type WatchedMovie struct {
	MovieID int
	Rating  float64
}

// Profile is a known user together with the movies they watched.
type Profile struct {
	ID      int
	Name    string
	Image   string
	Watched []WatchedMovie
}

// Classification is the label an image classifier picked and its confidence.
type Classification struct {
	Label       string
	Probability float64
}

// Recommendation is an assembled ranking for one user.
type Recommendation struct {
	UserID       string            `json:"userId"`
	ModelVersion string            `json:"modelVersion"`
	Items        []RankedCandidate `json:"items"`
	GeneratedAt  time.Time         `json:"generatedAt"`
}

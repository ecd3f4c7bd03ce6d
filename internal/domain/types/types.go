// Package types contains the read shapes returned by the HTTP API.
package types

import "time"

// RankedCandidate is the wire form of one scored movie.
type RankedCandidate struct {
	MovieID         int     `json:"movieId"`
	NormalizedScore float64 `json:"normalizedScore"`
}

// Movie is the wire form of a catalog entry.
type Movie struct {
	MovieID int    `json:"movieId"`
	Title   string `json:"title"`
}

// WatchedMovie is a movie from a profile's history with the user's rating.
type WatchedMovie struct {
	MovieID int     `json:"movieId"`
	Title   string  `json:"title"`
	Rating  float64 `json:"rating"`
}

// Profile is the wire form of a user profile.
type Profile struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Recommendation is the response of GET /api/recommendations/{userId}.
// Items keep the trending order; they are not sorted by score.
type Recommendation struct {
	UserID       string            `json:"userId"`
	ModelVersion string            `json:"modelVersion"`
	Items        []RankedCandidate `json:"items"`
	Trending     []Movie           `json:"trending"`
	Watched      []WatchedMovie    `json:"watched"`
	Cached       bool              `json:"cached"`
	GeneratedAt  time.Time         `json:"generatedAt"`
}

// SearchResult is the response of GET /api/movies.
type SearchResult struct {
	Query string  `json:"query"`
	Total uint64  `json:"total"`
	Hits  []Movie `json:"hits"`
}

// Classification is the response of POST /api/classify.
type Classification struct {
	PredictedLabel string  `json:"predictedLabel"`
	Probability    float64 `json:"probability"`
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/reel/internal/adapters/classifier"
	"github.com/okian/reel/internal/adapters/repository"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/internal/domain/types"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultMaxSearchLimit = 100
	defaultSearchLimit    = 20
)

// RecommendationDependencies produces rankings for a user.
type RecommendationDependencies interface {
	Recommend(ctx context.Context, userID string, refresh bool) (types.Recommendation, error)
	RecommendStream(ctx context.Context, userID string, onProgress func(done, total int)) (types.Recommendation, error)
}

// MovieDependencies exposes the catalog.
type MovieDependencies interface {
	Movie(ctx context.Context, id int) (types.Movie, error)
	Trending(ctx context.Context) []types.Movie
	SearchMovies(ctx context.Context, q string, limit int) (types.SearchResult, error)
}

// ProfileDependencies exposes the known users.
type ProfileDependencies interface {
	Profiles(ctx context.Context) []types.Profile
	Profile(ctx context.Context, id int) (types.Profile, error)
	Watched(ctx context.Context, id int) ([]types.WatchedMovie, error)
}

// ClassifyDependencies labels uploaded images.
type ClassifyDependencies interface {
	Classify(ctx context.Context, image []byte, contentType string) (types.Classification, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecommendationDependencies
	MovieDependencies
	ProfileDependencies
	ClassifyDependencies
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit limits /api and /ws requests to requests per window and client IP.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		if requests > 0 && window > 0 {
			s.rateRequests = requests
			s.rateWindow = window
		}
	}
}

// WithMaxUploadBytes caps the size of classification uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxSearchLimit caps the limit parameter of movie searches.
func WithMaxSearchLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSearchLimit = n
		}
	}
}

// WithReadiness makes /readyz report ready().
func WithReadiness(ready func() bool) Option {
	return func(s *Server) {
		if ready != nil {
			s.ready = ready
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler         *HealthHandler
	statsHandler          *StatsHandler
	recommendationHandler *RecommendationHandler
	streamHandler         *StreamHandler
	movieHandler          *MovieHandler
	profileHandler        *ProfileHandler
	classifyHandler       *ClassifyHandler

	rateRequests   int
	rateWindow     time.Duration
	maxUploadBytes int64
	maxSearchLimit int
	ready          func() bool
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxUploadBytes: defaultMaxUploadBytes,
		maxSearchLimit: defaultMaxSearchLimit,
		ready:          func() bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler(s.ready)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.recommendationHandler = NewRecommendationHandler(deps)
	s.streamHandler = NewStreamHandler(deps)
	s.movieHandler = NewMovieHandler(deps, s.maxSearchLimit)
	s.profileHandler = NewProfileHandler(deps)
	s.classifyHandler = NewClassifyHandler(deps, s.maxUploadBytes)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	api := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, RequestID(s.rateLimit(MetricsMiddleware(h, endpoint))))
	}
	api("GET /api/recommendations/{$}", "recommendations", s.recommendationHandler.HandleGetRecommendations)
	api("GET /api/recommendations/{userId}", "recommendations", s.recommendationHandler.HandleGetRecommendations)
	api("GET /ws/recommendations/{userId}", "ws_recommendations", s.streamHandler.HandleStream)
	api("GET /api/movies", "movies_search", s.movieHandler.HandleSearch)
	api("GET /api/movies/trending", "movies_trending", s.movieHandler.HandleTrending)
	api("GET /api/movies/{id}", "movie", s.movieHandler.HandleGetMovie)
	api("GET /api/profiles", "profiles", s.profileHandler.HandleList)
	api("GET /api/profiles/{id}", "profile", s.profileHandler.HandleGet)
	api("GET /api/profiles/{id}/watched", "profile_watched", s.profileHandler.HandleWatched)
	api("POST /api/classify", "classify", s.classifyHandler.HandleClassify)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps err with statusForError and writes it.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeError(w, status, code, err)
}

// statusForError translates service errors to an HTTP status and error code.
// Order matters: prediction failures wrap their cause.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest, "invalid_image"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ranking.ErrEmptyUser):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, scoring.ErrUnknownUser),
		errors.Is(err, repository.ErrMovieNotFound),
		errors.Is(err, repository.ErrProfileNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ranking.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, scoring.ErrPredictorUnavailable):
		return http.StatusServiceUnavailable, "predictor_unavailable"
	case errors.Is(err, classifier.ErrUnavailable):
		return http.StatusServiceUnavailable, "classifier_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, ranking.ErrPredictionFailed):
		return http.StatusBadGateway, "prediction_failed"
	case errors.Is(err, classifier.ErrBadResponse):
		return http.StatusBadGateway, "classification_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

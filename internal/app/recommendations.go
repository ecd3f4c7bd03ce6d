package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/okian/reel/internal/adapters/classifier"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
	"github.com/okian/reel/pkg/metrics"
)

// Recommend ranks the trending movies for userID. Cached lists are served
// unless refresh is set. Concurrent misses for one user share one assembly.
func (s *Service) Recommend(ctx context.Context, userID string, refresh bool) (types.Recommendation, error) {
	if !s.started.Load() {
		return types.Recommendation{}, ErrNotStarted
	}
	start := time.Now()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		metrics.RecordRecommendation("invalid")
		return types.Recommendation{}, ranking.ErrEmptyUser
	}

	if !refresh {
		if rec, ok := s.cached(ctx, userID); ok {
			s.observe(start, "cached")
			return s.present(rec, true), nil
		}
	}

	key := userID
	if refresh {
		key = "refresh:" + userID
		s.invalidate(ctx, userID)
	}
	// The shared assembly must not die with whichever caller started it; the
	// assembler bounds it with its own budget.
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.assemble(context.WithoutCancel(ctx), userID, nil)
	})
	if err != nil {
		s.fail(ctx, userID, err)
		return types.Recommendation{}, err
	}
	if shared {
		s.logger.Debug(ctx, "shared assembly", logger.String("user", userID))
	}
	s.observe(start, "ok")
	return s.present(v.(model.Recommendation), false), nil //nolint:forcetypeassert // assemble returns model.Recommendation
}

// RecommendStream is Recommend without the cache read, reporting each
// scored candidate to onProgress.
func (s *Service) RecommendStream(ctx context.Context, userID string, onProgress func(done, total int)) (types.Recommendation, error) {
	if !s.started.Load() {
		return types.Recommendation{}, ErrNotStarted
	}
	start := time.Now()
	userID = strings.TrimSpace(userID)

	rec, err := s.assemble(ctx, userID, onProgress)
	if err != nil {
		s.fail(ctx, userID, err)
		return types.Recommendation{}, err
	}
	s.observe(start, "ok")
	return s.present(rec, false), nil
}

func (s *Service) assemble(ctx context.Context, userID string, onProgress ranking.ProgressFunc) (model.Recommendation, error) {
	items, err := s.assembler.AssembleWithProgress(ctx, userID, s.trending, onProgress)
	if err != nil {
		return model.Recommendation{}, err
	}
	rec := model.Recommendation{
		UserID:       userID,
		ModelVersion: s.ModelVersion(),
		Items:        items,
		GeneratedAt:  time.Now().UTC(),
	}
	// Stop may close the cache while a stream is still assembling.
	if store := s.cache.Load(); store != nil {
		if err := store.PutRecommendation(ctx, rec); err != nil {
			s.logger.Warn(ctx, "cache write failed", logger.String("user", userID), logger.Error(err))
		}
	}
	return rec, nil
}

func (s *Service) cached(ctx context.Context, userID string) (model.Recommendation, bool) {
	store := s.cache.Load()
	if store == nil {
		return model.Recommendation{}, false
	}
	rec, ok, err := store.GetRecommendation(ctx, userID, s.ModelVersion())
	if err != nil {
		s.logger.Warn(ctx, "cache read failed", logger.String("user", userID), logger.Error(err))
		return model.Recommendation{}, false
	}
	return rec, ok
}

// invalidate drops the user's cached lists of every model version.
func (s *Service) invalidate(ctx context.Context, userID string) {
	store := s.cache.Load()
	if store == nil {
		return
	}
	if err := store.InvalidateUser(userID); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", logger.String("user", userID), logger.Error(err))
	}
}

func (s *Service) observe(start time.Time, outcome string) {
	metrics.RecordRecommendation(outcome)
	metrics.RecordRecommendationLatency(float64(time.Since(start).Milliseconds()))
}

func (s *Service) fail(ctx context.Context, userID string, err error) {
	metrics.RecordRecommendation("error")
	metrics.RecordErrorByComponent("service", errorType(err))
	s.logger.Warn(ctx, "recommendation failed", logger.String("user", userID), logger.Error(err))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ranking.ErrEmptyUser):
		return "empty_user"
	case errors.Is(err, ranking.ErrBackpressure):
		return "backpressure"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "prediction"
	}
}

// present builds the API view of rec. The trending list and the user's
// watched history are attached; an unknown profile just has no history.
func (s *Service) present(rec model.Recommendation, cached bool) types.Recommendation { //nolint:gocritic // hugeParam: value semantics
	items := make([]types.RankedCandidate, len(rec.Items))
	for i, c := range rec.Items {
		items[i] = types.RankedCandidate{MovieID: c.MovieID, NormalizedScore: c.NormalizedScore}
	}

	watched := []types.WatchedMovie{}
	if id, err := strconv.Atoi(rec.UserID); err == nil {
		if w, err := s.watched(id); err == nil {
			watched = w
		}
	}

	return types.Recommendation{
		UserID:       rec.UserID,
		ModelVersion: rec.ModelVersion,
		Items:        items,
		Trending:     s.trendingView,
		Watched:      watched,
		Cached:       cached,
		GeneratedAt:  rec.GeneratedAt,
	}
}

// Movie returns one catalog entry.
func (s *Service) Movie(_ context.Context, id int) (types.Movie, error) {
	if !s.started.Load() {
		return types.Movie{}, ErrNotStarted
	}
	m, err := s.catalog.Get(id)
	if err != nil {
		return types.Movie{}, err
	}
	return types.Movie{MovieID: m.ID, Title: m.Title}, nil
}

// Trending returns the candidate movies in catalog order.
func (s *Service) Trending(context.Context) []types.Movie {
	if !s.started.Load() {
		return []types.Movie{}
	}
	return s.trendingView
}

// SearchMovies runs a title search.
func (s *Service) SearchMovies(ctx context.Context, q string, limit int) (types.SearchResult, error) {
	if !s.started.Load() {
		return types.SearchResult{}, ErrNotStarted
	}
	res, err := s.index.Search(ctx, q, limit)
	if err != nil {
		return types.SearchResult{}, err
	}
	return types.SearchResult{Query: res.Query, Total: res.Total, Hits: toMovies(res.Movies)}, nil
}

// Profiles lists the known users.
func (s *Service) Profiles(context.Context) []types.Profile {
	if !s.started.Load() {
		return []types.Profile{}
	}
	all := s.profiles.All()
	out := make([]types.Profile, len(all))
	for i, p := range all {
		out[i] = toProfile(p)
	}
	return out
}

// Profile returns one user.
func (s *Service) Profile(_ context.Context, id int) (types.Profile, error) {
	if !s.started.Load() {
		return types.Profile{}, ErrNotStarted
	}
	p, err := s.profiles.Get(id)
	if err != nil {
		return types.Profile{}, err
	}
	return toProfile(p), nil
}

// Watched returns the rated history of a user.
func (s *Service) Watched(_ context.Context, id int) ([]types.WatchedMovie, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	return s.watched(id)
}

func (s *Service) watched(id int) ([]types.WatchedMovie, error) {
	p, err := s.profiles.Get(id)
	if err != nil {
		return nil, err
	}
	movies, err := s.profiles.Watched(id)
	if err != nil {
		return nil, err
	}
	out := make([]types.WatchedMovie, len(movies))
	for i, m := range movies {
		out[i] = types.WatchedMovie{MovieID: m.ID, Title: m.Title, Rating: p.Watched[i].Rating}
	}
	return out, nil
}

// Classify labels a poster image.
func (s *Service) Classify(ctx context.Context, image []byte, contentType string) (types.Classification, error) {
	if !s.started.Load() {
		return types.Classification{}, ErrNotStarted
	}
	if s.classifier == nil {
		return types.Classification{}, errors.Join(classifier.ErrUnavailable, ErrNoClassifier)
	}
	res, err := s.classifier.Classify(ctx, image, contentType)
	if err != nil {
		s.logger.Warn(ctx, "classification failed", logger.Error(err))
		return types.Classification{}, err
	}
	return types.Classification{PredictedLabel: res.Label, Probability: res.Probability}, nil
}

func toMovies(ms []model.Movie) []types.Movie {
	out := make([]types.Movie, len(ms))
	for i, m := range ms {
		out[i] = types.Movie{MovieID: m.ID, Title: m.Title}
	}
	return out
}

func toProfile(p model.Profile) types.Profile { //nolint:gocritic // hugeParam: value semantics
	return types.Profile{ID: p.ID, Name: p.Name, Image: p.Image}
}

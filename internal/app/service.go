// Package service wires the catalog, predictor, scoring pool, cache and
// search index together and implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/reel/internal/adapters/breaker"
	"github.com/okian/reel/internal/adapters/cache"
	"github.com/okian/reel/internal/adapters/classifier"
	"github.com/okian/reel/internal/adapters/mq/queue"
	"github.com/okian/reel/internal/adapters/mq/worker"
	"github.com/okian/reel/internal/adapters/predictor"
	"github.com/okian/reel/internal/adapters/repository"
	"github.com/okian/reel/internal/adapters/search"
	"github.com/okian/reel/internal/config"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/ranking"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
	"github.com/okian/reel/pkg/metrics"
)

// Classifier labels poster images.
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType string) (model.Classification, error)
}

// Service implements the API dependencies for the recommendation system.
type Service struct {
	mu      sync.Mutex
	started atomic.Bool

	// Data sets, immutable once started.
	catalog      *repository.Catalog
	trending     []model.Movie
	trendingView []types.Movie
	profiles     *repository.Profiles

	// Scoring
	predictor *predictor.Guarded
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	assembler *ranking.Assembler

	cache      atomic.Pointer[cache.Store]
	group      singleflight.Group
	index      *search.Index
	classifier Classifier

	// Configuration
	catalogPath       string
	profilesPath      string
	trendingIDs       []int
	predictorKind     string
	modelPath         string
	coldStart         bool
	predictorURL      string
	predictorTimeout  time.Duration
	predictorRPS      float64
	predictorBurst    int
	predictorVersion  string
	staticScore       float64
	staticMaxLatency  time.Duration
	injected          scoring.Predictor
	injectedVersion   string
	breaker           breaker.Settings
	workerCount       int
	queueSize         int
	perCallBudget     time.Duration
	maxRequestBudget  time.Duration
	cacheEnabled      bool
	cachePath         string
	cacheTTL          time.Duration
	classifierURL     string
	classifierTimeout time.Duration

	startedAt time.Time
	logger    logger.Logger
}

// New constructs a new Service. Defaults match config.New.
func New(opts ...Option) *Service {
	d := config.New()
	s := &Service{
		catalogPath:      d.CatalogPath,
		profilesPath:     d.ProfilesPath,
		predictorKind:    d.Predictor,
		modelPath:        d.ModelPath,
		predictorTimeout: d.PredictorTimeout,
		predictorBurst:   d.PredictorBurst,
		breaker: breaker.Settings{
			MaxRequests:  d.BreakerMaxRequests,
			Interval:     d.BreakerInterval,
			Timeout:      d.BreakerTimeout,
			MinRequests:  d.BreakerMinRequests,
			FailureRatio: d.BreakerFailureRatio,
		},
		workerCount:       d.WorkerCount,
		queueSize:         d.QueueSize,
		perCallBudget:     d.PerCallBudget,
		maxRequestBudget:  d.MaxRequestBudget,
		cacheEnabled:      d.CacheEnabled,
		cacheTTL:          d.CacheTTL,
		classifierTimeout: d.ClassifierTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the data sets and builds the scoring pipeline. Any load error
// is returned and nothing is left running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting recommendation service...")

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"data", s.loadData},
		{"predictor", s.buildPredictor},
		{"scorer", s.buildScorer},
		{"cache", s.openCache},
		{"search", s.buildIndex},
		{"classifier", s.buildClassifier},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			s.release(ctx)
			return fmt.Errorf("start %s: %w", step.name, err)
		}
	}

	metrics.UpdateDataSetSizes(s.catalog.Len(), len(s.trending), s.profiles.Len())
	s.startedAt = time.Now()
	s.started.Store(true)

	s.logger.Info(ctx, "recommendation service started",
		logger.Int("movies", s.catalog.Len()),
		logger.Int("trending", len(s.trending)),
		logger.Int("profiles", s.profiles.Len()),
		logger.String("predictor", s.predictorKind),
		logger.String("modelVersion", s.ModelVersion()),
		logger.Int("workers", s.workerCount),
		logger.Bool("cache", s.cache.Load() != nil),
	)
	return nil
}

func (s *Service) loadData(ctx context.Context) error {
	catalog, err := repository.LoadCatalog(ctx, s.catalogPath)
	if err != nil {
		return err
	}
	trending, err := catalog.Subset(s.trendingIDs)
	if err != nil {
		return fmt.Errorf("trending: %w", err)
	}

	var profiles *repository.Profiles
	if s.profilesPath == "" {
		profiles, err = repository.ParseProfiles([]byte("[]"), catalog)
	} else {
		profiles, err = repository.LoadProfiles(ctx, s.profilesPath, catalog)
	}
	if err != nil {
		return err
	}

	s.catalog = catalog
	s.trending = trending
	s.trendingView = toMovies(trending)
	s.profiles = profiles
	return nil
}

func (s *Service) buildPredictor(ctx context.Context) error {
	var (
		p scoring.Predictor
		b *breaker.Breaker[float64]
	)
	switch s.predictorKind {
	case config.PredictorRemote:
		if s.predictorURL == "" {
			return errors.New("remote predictor needs a url")
		}
		p = predictor.NewRemote(s.predictorURL,
			predictor.WithTimeout(s.predictorTimeout),
			predictor.WithRateLimit(s.predictorRPS, s.predictorBurst),
			predictor.WithModelVersion(s.predictorVersion),
		)
		st := s.breaker
		st.Name = "predictor"
		st.IsSuccessful = predictor.CountsAsSuccess
		b = breaker.New[float64](st)
	case config.PredictorFactors:
		m, err := predictor.LoadFactorModel(ctx, s.modelPath, predictor.WithColdStart(s.coldStart))
		if err != nil {
			return err
		}
		p = m
	case config.PredictorStatic:
		p = scoring.NewStaticPredictor(
			scoring.WithDefaultScore(s.staticScore),
			scoring.WithLatencyRange(0, s.staticMaxLatency),
		)
	default:
		if s.injected == nil {
			return fmt.Errorf("unknown predictor %q", s.predictorKind)
		}
		p = s.injected
	}
	s.predictor = predictor.NewGuarded(s.predictorKind, p, b)
	return nil
}

func (s *Service) buildScorer(ctx context.Context) error {
	var scorer ranking.BatchScorer
	if s.workerCount > 0 {
		// ScoreAll fails a batch the queue cannot hold in full.
		if s.queueSize < len(s.trending) {
			return fmt.Errorf("%w: queue_size %d < %d candidates", ErrQueueTooSmall, s.queueSize, len(s.trending))
		}
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.pool = worker.NewPool(s.workerCount, s.queue, s.predictor, worker.WithCallTimeout(s.perCallBudget))
		// Workers outlive the start context; Stop closes the queue.
		s.pool.Start(context.WithoutCancel(ctx))
		scorer = s.pool
	} else {
		scorer = ranking.NewSequentialScorer(s.predictor, s.perCallBudget)
	}
	s.assembler = ranking.NewAssembler(scorer,
		ranking.WithPerCallBudget(s.perCallBudget),
		ranking.WithMaxRequestBudget(s.maxRequestBudget),
	)
	return nil
}

func (s *Service) openCache(context.Context) error {
	if !s.cacheEnabled {
		return nil
	}
	store, err := cache.Open(cache.WithPath(s.cachePath), cache.WithTTL(s.cacheTTL))
	if err != nil {
		return err
	}
	s.cache.Store(store)
	return nil
}

func (s *Service) buildIndex(ctx context.Context) error {
	idx, err := search.Build(ctx, s.catalog)
	if err != nil {
		return err
	}
	s.index = idx
	return nil
}

func (s *Service) buildClassifier(context.Context) error {
	if s.classifier != nil || s.classifierURL == "" {
		return nil
	}
	st := s.breaker
	st.Name = "classifier"
	s.classifier = classifier.NewRemote(s.classifierURL,
		classifier.WithTimeout(s.classifierTimeout),
		classifier.WithBreaker(breaker.New[model.Classification](st)),
	)
	return nil
}

// Stop shuts the scoring pool down, then closes the cache and the index.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Swap(false) {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping recommendation service...")
	s.release(ctx)
	s.logger.Info(ctx, "recommendation service stopped")
}

// release tears down whatever Start managed to build.
func (s *Service) release(ctx context.Context) {
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
		s.pool, s.queue = nil, nil
	}
	if store := s.cache.Swap(nil); store != nil {
		if err := store.Close(); err != nil {
			s.logger.Warn(ctx, "close cache", logger.Error(err))
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Warn(ctx, "close search index", logger.Error(err))
		}
		s.index = nil
	}
}

// Ready reports whether Start has completed.
func (s *Service) Ready() bool {
	return s.started.Load()
}

// ModelVersion returns the version of the active predictor.
func (s *Service) ModelVersion() string {
	switch {
	case s.injectedVersion != "":
		return s.injectedVersion
	case s.predictor == nil:
		return ""
	default:
		return s.predictor.ModelVersion()
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	stats := map[string]any{
		"started":   s.started.Load(),
		"predictor": s.predictorKind,
		"workers":   s.workerCount,
	}
	if !s.started.Load() {
		return stats
	}

	stats["uptime"] = time.Since(s.startedAt).Round(time.Second).String()
	stats["modelVersion"] = s.ModelVersion()
	stats["breaker"] = s.predictor.BreakerState()
	stats["catalogSize"] = s.catalog.Len()
	stats["trendingSize"] = len(s.trending)
	stats["profiles"] = s.profiles.Len()
	stats["indexedMovies"] = s.index.DocCount()
	stats["classifier"] = s.classifier != nil

	if s.queue != nil {
		stats["queueLength"] = s.queue.Len()
		stats["queueCapacity"] = s.queue.Capacity()
		stats["predictions"] = s.pool.Processed()
	}
	if store := s.cache.Load(); store != nil {
		stats["cacheEntries"] = store.Len()
	}
	return stats
}

// Prediction is the outcome of scoring one (user, movie) pair.
type Prediction struct {
	Movie      model.Movie
	Raw        float64
	Normalized float64
}

// PredictOne scores a single pair outside the batch pipeline.
func (s *Service) PredictOne(ctx context.Context, userID string, movieID int) (Prediction, error) {
	if !s.started.Load() {
		return Prediction{}, ErrNotStarted
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Prediction{}, ranking.ErrEmptyUser
	}
	m, err := s.catalog.Get(movieID)
	if err != nil {
		return Prediction{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.perCallBudget)
	defer cancel()

	q := model.RatingQuery{UserID: userID, MovieID: strconv.Itoa(movieID)}
	raw, err := s.predictor.Predict(ctx, q)
	if err != nil {
		return Prediction{}, ranking.QueryError(q, err)
	}
	norm, err := scoring.NormalizeChecked(raw)
	if err != nil {
		return Prediction{}, ranking.QueryError(q, err)
	}
	return Prediction{Movie: m, Raw: raw, Normalized: norm}, nil
}

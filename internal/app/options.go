package service

import (
	"time"

	"github.com/okian/reel/internal/adapters/breaker"
	"github.com/okian/reel/internal/config"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCatalogPath sets the movies CSV to load.
func WithCatalogPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.catalogPath = path
		}
	}
}

// WithProfilesPath sets the profiles JSON to load. Empty disables profiles.
func WithProfilesPath(path string) Option {
	return func(s *Service) {
		s.profilesPath = path
	}
}

// WithTrendingIDs selects the candidate movies. Empty means the whole catalog.
func WithTrendingIDs(ids []int) Option {
	return func(s *Service) {
		s.trendingIDs = ids
	}
}

// WithFactorModel scores with the exported factor model at path.
func WithFactorModel(path string, coldStart bool) Option {
	return func(s *Service) {
		s.predictorKind = config.PredictorFactors
		s.modelPath = path
		s.coldStart = coldStart
	}
}

// WithRemotePredictor scores through the HTTP predictor at url.
func WithRemotePredictor(url string, timeout time.Duration, rps float64, burst int) Option {
	return func(s *Service) {
		s.predictorKind = config.PredictorRemote
		s.predictorURL = url
		s.predictorTimeout = timeout
		s.predictorRPS = rps
		s.predictorBurst = burst
	}
}

// WithRemoteModelVersion sets the version the remote predictor reports until
// its endpoint sends one.
func WithRemoteModelVersion(v string) Option {
	return func(s *Service) {
		s.predictorVersion = v
	}
}

// WithStaticPredictor scores every pair with the same raw score, sleeping up
// to maxLatency per call. It serves demos without a trained model.
func WithStaticPredictor(raw float64, maxLatency time.Duration) Option {
	return func(s *Service) {
		s.predictorKind = config.PredictorStatic
		s.staticScore = raw
		s.staticMaxLatency = maxLatency
	}
}

// WithPredictor injects a ready predictor, bypassing model loading.
func WithPredictor(p scoring.Predictor, modelVersion string) Option {
	return func(s *Service) {
		if p != nil {
			s.predictorKind = "custom"
			s.injected = p
			s.injectedVersion = modelVersion
		}
	}
}

// WithBreaker configures the circuit breakers around remote calls.
func WithBreaker(st breaker.Settings) Option {
	return func(s *Service) {
		s.breaker = st
	}
}

// WithWorkerCount sets the number of scoring workers. 0 scores sequentially.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count >= 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the scoring queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBudgets sets the per-call and whole-request scoring deadlines.
func WithBudgets(perCall, maxRequest time.Duration) Option {
	return func(s *Service) {
		if perCall > 0 {
			s.perCallBudget = perCall
		}
		if maxRequest > 0 {
			s.maxRequestBudget = maxRequest
		}
	}
}

// WithCache enables the recommendation cache. An empty path keeps it in memory.
func WithCache(enabled bool, path string, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheEnabled = enabled
		s.cachePath = path
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClassifier enables poster classification through the service at url.
func WithClassifier(url string, timeout time.Duration) Option {
	return func(s *Service) {
		s.classifierURL = url
		if timeout > 0 {
			s.classifierTimeout = timeout
		}
	}
}

// WithImageClassifier injects a ready classifier.
func WithImageClassifier(c Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// OptionsFromConfig translates cfg into service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithCatalogPath(cfg.CatalogPath),
		WithProfilesPath(cfg.ProfilesPath),
		WithTrendingIDs(cfg.TrendingIDs),
		WithBreaker(breaker.Settings{
			MaxRequests:  cfg.BreakerMaxRequests,
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
		}),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithBudgets(cfg.PerCallBudget, cfg.MaxRequestBudget),
		WithCache(cfg.CacheEnabled, cfg.CachePath, cfg.CacheTTL),
		WithClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout),
	}
	switch cfg.Predictor {
	case config.PredictorRemote:
		opts = append(opts,
			WithRemotePredictor(cfg.PredictorURL, cfg.PredictorTimeout, cfg.PredictorRPS, cfg.PredictorBurst),
			WithRemoteModelVersion(cfg.PredictorModelVersion),
		)
	case config.PredictorStatic:
		opts = append(opts, WithStaticPredictor(cfg.StaticScore, cfg.StaticMaxLatency))
	default:
		opts = append(opts, WithFactorModel(cfg.ModelPath, cfg.ColdStart))
	}
	return opts
}

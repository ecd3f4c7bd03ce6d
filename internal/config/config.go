// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
	"time"
)

// Predictor kinds.
const (
	PredictorFactors = "factors"
	PredictorRemote  = "remote"
	PredictorStatic  = "static"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// CatalogPath points at the movies CSV (header row, movieId,title[,genres]).
	CatalogPath string `koanf:"catalog_path" validate:"required"`
	// ProfilesPath points at the profiles JSON. Empty disables profiles.
	ProfilesPath string `koanf:"profiles_path"`
	// TrendingIDs selects the candidate set. Empty means the whole catalog.
	TrendingIDs []int `koanf:"trending_ids" validate:"dive,gt=0"`

	// Predictor selects the raw score source: factors, remote or static.
	Predictor string `koanf:"predictor" validate:"oneof=factors remote static"`
	// ModelPath is the exported factor model used by the factors predictor.
	ModelPath string `koanf:"model_path"`
	// ColdStart scores unknown users/movies with biases only instead of failing.
	ColdStart bool `koanf:"cold_start"`

	// PredictorURL is the base URL of the remote predictor.
	PredictorURL     string        `koanf:"predictor_url" validate:"omitempty,url"`
	PredictorTimeout time.Duration `koanf:"predictor_timeout" validate:"gt=0"`
	// PredictorRPS and PredictorBurst pace outbound predictor calls. 0 disables pacing.
	PredictorRPS   float64 `koanf:"predictor_rps" validate:"gte=0"`
	PredictorBurst int     `koanf:"predictor_burst" validate:"gte=0"`
	// PredictorModelVersion is reported until the remote endpoint sends a version.
	PredictorModelVersion string `koanf:"predictor_model_version"`

	// StaticScore is the raw score of every pair under the static predictor,
	// which waits up to StaticMaxLatency per call.
	StaticScore      float64       `koanf:"static_score"`
	StaticMaxLatency time.Duration `koanf:"static_max_latency" validate:"gte=0"`

	// Circuit breaker around remote calls.
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests" validate:"gt=0"`
	BreakerInterval     time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests" validate:"gt=0"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`

	// WorkerCount sets the number of scoring workers. 0 scores sequentially.
	WorkerCount int `koanf:"worker_count" validate:"gte=0"`
	// QueueSize bounds the scoring job queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// PerCallBudget bounds one predictor call; a request gets PerCallBudget per
	// candidate, capped by MaxRequestBudget.
	PerCallBudget    time.Duration `koanf:"per_call_budget" validate:"gt=0"`
	MaxRequestBudget time.Duration `koanf:"max_request_budget" validate:"gt=0"`

	// Recommendation cache.
	CacheEnabled bool          `koanf:"cache_enabled"`
	CachePath    string        `koanf:"cache_path"`
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"gt=0"`

	// Inbound rate limit per client IP. 0 requests disables it.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// MaxSearchLimit caps GET /api/movies?limit.
	MaxSearchLimit int `koanf:"max_search_limit" validate:"gt=0"`
	// MaxUploadBytes caps POST /api/classify bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes" validate:"gt=0"`

	// ClassifierURL is the remote image classifier. Empty disables classification.
	ClassifierURL     string        `koanf:"classifier_url" validate:"omitempty,url"`
	ClassifierTimeout time.Duration `koanf:"classifier_timeout" validate:"gt=0"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		CatalogPath:         "data/movies.csv",
		ProfilesPath:        "data/profiles.json",
		Predictor:           PredictorFactors,
		ModelPath:           "data/model.json",
		PredictorTimeout:    2 * time.Second,
		PredictorRPS:        0,
		PredictorBurst:      1,
		BreakerMaxRequests:  3,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      30 * time.Second,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.6,
		WorkerCount:         runtime.NumCPU() * 2,
		QueueSize:           10_000,
		PerCallBudget:       250 * time.Millisecond,
		MaxRequestBudget:    10 * time.Second,
		CacheEnabled:        true,
		CacheTTL:            time.Hour,
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		MaxSearchLimit:      100,
		MaxUploadBytes:      10 << 20,
		ClassifierTimeout:   5 * time.Second,
	}
}

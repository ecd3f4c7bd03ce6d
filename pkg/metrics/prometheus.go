// Package metrics provides Prometheus metrics for the reel recommendation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Recommendations
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	candidatesScored       prometheus.Counter
	normalizedScores       prometheus.Histogram

	// Predictor
	predictorLatency *prometheus.HistogramVec
	predictorErrors  *prometheus.CounterVec

	// Circuit breaker
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerRequests    *prometheus.CounterVec

	// Cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheErrors *prometheus.CounterVec

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Data sets loaded at startup
	catalogMovies  prometheus.Gauge
	trendingMovies prometheus.Gauge
	profiles       prometheus.Gauge

	// Search, uploads, streams
	searchQueries    prometheus.Counter
	searchLatency    prometheus.Histogram
	uploads          *prometheus.CounterVec
	websocketStreams *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "reel",
		subsystem:        "recommender",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.recommendationRequests = m.counterVec("recommendation_requests_total",
		"Recommendation requests by outcome", "outcome")
	m.recommendationLatency = m.histogram("recommendation_latency_milliseconds",
		"End-to-end latency of assembling one recommendation list", m.histogramBuckets)
	m.candidatesScored = m.counter("candidates_scored_total",
		"Candidates that received a normalized score")
	m.normalizedScores = m.histogram("normalized_score",
		"Distribution of normalized scores in (0, 100)", prometheus.LinearBuckets(10, 10, 9))

	m.predictorLatency = m.histogramVec("predictor_latency_milliseconds",
		"Latency of single predictor calls", m.histogramBuckets, "predictor")
	m.predictorErrors = m.counterVec("predictor_errors_total",
		"Predictor failures by kind", "predictor", "kind")

	m.breakerState = m.gaugeVec("circuit_breaker_state",
		"Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")
	m.breakerTransitions = m.counterVec("circuit_breaker_transitions_total",
		"Circuit breaker state transitions", "name", "from", "to")
	m.breakerRequests = m.counterVec("circuit_breaker_requests_total",
		"Requests through the circuit breaker by result", "name", "result")

	m.cacheHits = m.counter("cache_hits_total", "Recommendation cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "Recommendation cache misses")
	m.cacheErrors = m.counterVec("cache_errors_total", "Recommendation cache errors by operation", "op")

	m.queueSize = m.gauge("queue_size", "Scoring jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum scoring queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Scoring jobs accepted by the queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Scoring jobs rejected by the queue", "reason")

	m.workerCount = m.gauge("worker_count", "Scoring workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one scoring job", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Scoring jobs that ended in an error")

	m.catalogMovies = m.gauge("catalog_movies", "Movies in the loaded catalog")
	m.trendingMovies = m.gauge("trending_movies", "Movies in the trending candidate set")
	m.profiles = m.gauge("profiles", "Profiles loaded at startup")

	m.searchQueries = m.counter("search_queries_total", "Title search queries")
	m.searchLatency = m.histogram("search_latency_milliseconds", "Title search latency", m.histogramBuckets)
	m.uploads = m.counterVec("classification_uploads_total", "Image uploads by outcome", "outcome")
	m.websocketStreams = m.counterVec("websocket_streams_total", "Recommendation streams by outcome", "outcome")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordRecommendation counts one recommendation request by outcome
// ("ok", "cached", "bad_request", "not_found", "failed", ...).
func RecordRecommendation(outcome string) {
	globalManager.recommendationRequests.WithLabelValues(outcome).Inc()
}

// RecordRecommendationLatency records the assembly latency in milliseconds.
func RecordRecommendationLatency(latencyMs float64) {
	globalManager.recommendationLatency.Observe(latencyMs)
}

// RecordNormalizedScore counts a scored candidate and observes its score.
func RecordNormalizedScore(score float64) {
	globalManager.candidatesScored.Inc()
	globalManager.normalizedScores.Observe(score)
}

// RecordPredictorLatency records a single predictor call.
func RecordPredictorLatency(predictor string, latencyMs float64) {
	globalManager.predictorLatency.WithLabelValues(predictor).Observe(latencyMs)
}

// RecordPredictorError counts a predictor failure.
func RecordPredictorError(predictor, kind string) {
	globalManager.predictorErrors.WithLabelValues(predictor, kind).Inc()
}

// UpdateBreakerState sets the numeric state of a named circuit breaker.
func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerTransition counts a circuit breaker state change.
func RecordBreakerTransition(name, from, to string) {
	globalManager.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordBreakerRequest counts a call through a breaker ("success", "failure", "rejected").
func RecordBreakerRequest(name, result string) {
	globalManager.breakerRequests.WithLabelValues(name, result).Inc()
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheError counts a failed cache operation ("get", "set", "delete").
func RecordCacheError(op string) {
	globalManager.cacheErrors.WithLabelValues(op).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a rejected job ("closed", "full", "context_cancelled").
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateDataSetSizes sets the sizes of the data loaded at startup.
func UpdateDataSetSizes(catalog, trending, profiles int) {
	globalManager.catalogMovies.Set(float64(catalog))
	globalManager.trendingMovies.Set(float64(trending))
	globalManager.profiles.Set(float64(profiles))
}

// RecordSearch records one title search.
func RecordSearch(latencyMs float64) {
	globalManager.searchQueries.Inc()
	globalManager.searchLatency.Observe(latencyMs)
}

// RecordUpload counts an image upload by outcome.
func RecordUpload(outcome string) {
	globalManager.uploads.WithLabelValues(outcome).Inc()
}

// RecordWebSocketStream counts a recommendation stream by outcome.
func RecordWebSocketStream(outcome string) {
	globalManager.websocketStreams.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

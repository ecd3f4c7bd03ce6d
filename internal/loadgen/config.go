package loadgen

import (
	"errors"
	"time"
)

// Sentinel kinds for load test failures.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrNoUsers      = errors.New("no users to request")
	ErrVerification = errors.New("response verification failed")
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Requests   int           // Number of recommendation requests
	Users      []string      // User ids; empty means every profile
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Refresh    bool          // Bypass the recommendation cache
	OutputFile string        // Output file for per-request results
	LogFile    string        // Log file for test output
	Verbose    bool          // Log every failed request
}

// Result is the outcome of one recommendation request.
type Result struct {
	Seq       int     `json:"seq"`
	UserID    string  `json:"userId"`
	Status    int     `json:"status"`
	LatencyMs float64 `json:"latencyMs"`
	Items     int     `json:"items"`
	Cached    bool    `json:"cached"`
	Error     string  `json:"error,omitempty"`
}

// Stats holds test statistics.
type Stats struct {
	RunID      string        `json:"runId"`
	Requests   int           `json:"requests"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Invalid    int           `json:"invalid"`
	Cached     int           `json:"cached"`
	Trending   int           `json:"trending"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"duration"`
}

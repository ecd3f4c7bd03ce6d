package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
)

const (
	directoryPermission  = 0o750
	outputFilePermission = 0o600
	percentageMultiplier = 100
)

// report is the document written to the output file.
type report struct {
	Stats    *Stats        `json:"stats"`
	Trending []types.Movie `json:"trending"`
	Results  []Result      `json:"results"`
}

// Run executes the complete load test. It fails when the service is
// unreachable or when any response does not verify.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		Requests:  config.Requests,
		StartTime: time.Now(),
	}
	log := logger.Get().Named("loadgen")

	log.Info(ctx, "starting reel load test",
		logger.String("runId", stats.RunID),
		logger.String("baseURL", config.BaseURL),
		logger.Int("requests", config.Requests),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("refresh", config.Refresh))

	c := newClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if _, err := c.get(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	// Step 2: Expected candidate order
	var trending []types.Movie
	if _, err := c.get(ctx, "/api/movies/trending", &trending); err != nil {
		return stats, fmt.Errorf("trending retrieval failed: %w", err)
	}
	stats.Trending = len(trending)

	// Step 3: Users to request
	users, err := resolveUsers(ctx, c, config.Users)
	if err != nil {
		return stats, err
	}

	// Step 4: Fire requests concurrently
	results := fire(ctx, c, config, users, trending)

	// Step 5: Tally
	for i := range results {
		r := &results[i]
		switch {
		case r.Status != http.StatusOK:
			stats.Failed++
			if config.Verbose {
				log.Warn(ctx, "request failed", logger.String("user", r.UserID), logger.String("error", r.Error))
			}
		case r.Error != "":
			stats.Invalid++
			log.Error(ctx, "invalid response", logger.String("user", r.UserID), logger.String("error", r.Error))
		default:
			stats.Successful++
			if r.Cached {
				stats.Cached++
			}
		}
	}
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	// Step 6: Save results
	if err := saveResults(ctx, config, &report{Stats: stats, Trending: trending, Results: results}); err != nil {
		log.Warn(ctx, "failed to save results", logger.Error(err))
	}

	displayFinalStats(ctx, stats)

	if stats.Invalid > 0 {
		return stats, fmt.Errorf("%w: %d of %d responses", ErrVerification, stats.Invalid, stats.Requests)
	}
	log.Info(ctx, "test completed successfully")
	return stats, nil
}

func resolveUsers(ctx context.Context, c *client, users []string) ([]string, error) {
	if len(users) > 0 {
		return users, nil
	}
	var profiles []types.Profile
	if _, err := c.get(ctx, "/api/profiles", &profiles); err != nil {
		return nil, fmt.Errorf("profile retrieval failed: %w", err)
	}
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = strconv.Itoa(p.ID)
	}
	if len(out) == 0 {
		return nil, ErrNoUsers
	}
	return out, nil
}

// fire spreads config.Requests across the workers, cycling through users.
func fire(ctx context.Context, c *client, config *Config, users []string, trending []types.Movie) []Result {
	results := make([]Result, config.Requests)
	var next atomic.Int64
	var wg sync.WaitGroup

	workers := max(1, config.Workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				seq := int(next.Add(1) - 1)
				if seq >= config.Requests || ctx.Err() != nil {
					return
				}
				results[seq] = request(ctx, c, seq, users[seq%len(users)], config.Refresh, trending)
			}
		}()
	}
	wg.Wait()
	return results
}

func request(ctx context.Context, c *client, seq int, userID string, refresh bool, trending []types.Movie) Result {
	res := Result{Seq: seq, UserID: userID}
	start := time.Now()

	var rec types.Recommendation
	status, err := c.get(ctx, recommendationPath(userID, refresh), &rec)
	res.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	res.Status = status
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Items = len(rec.Items)
	res.Cached = rec.Cached
	if err := verify(&rec, trending); err != nil {
		res.Error = err.Error()
	}
	return res
}

// saveResults writes the report as indented JSON.
func saveResults(ctx context.Context, config *Config, r *report) error {
	filename := config.OutputFile
	if filename == "" {
		filename = "loadgen_results_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, data, outputFilePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, requestsPerSecond float64

	if stats.Requests > 0 {
		successRate = float64(stats.Successful) / float64(stats.Requests) * percentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Requests) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.String("runId", stats.RunID),
		logger.Int("requests", stats.Requests),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Int("invalid", stats.Invalid),
		logger.Int("cached", stats.Cached),
		logger.Int("trending", stats.Trending),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}

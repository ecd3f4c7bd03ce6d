package predictor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/validation"
)

const (
	defaultRemoteTimeout = 2 * time.Second
	defaultModelVersion  = "remote"
	maxResponseBytes     = 1 << 16
)

type remoteRequest struct {
	UserID  string `json:"userId"`
	MovieID string `json:"movieId"`
}

type remoteResponse struct {
	Score        *float64 `json:"score" validate:"required"`
	ModelVersion string   `json:"modelVersion"`
}

// RemoteOption applies a configuration option to the Remote predictor.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout sets the client timeout of the default client.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// WithRateLimit paces outgoing calls to rps with the given burst. A
// non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) RemoteOption {
	return func(r *Remote) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithModelVersion sets the version reported until the endpoint sends one.
func WithModelVersion(v string) RemoteOption {
	return func(r *Remote) {
		if v != "" {
			r.version.Store(&v)
		}
	}
}

// Remote asks an HTTP endpoint for scores: it POSTs
// {"userId","movieId"} and expects {"score"[,"modelVersion"]}.
// A 404 answer means the user is unknown to the model. The last version the
// endpoint reported replaces the configured one.
type Remote struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter

	version atomic.Pointer[string]
}

// NewRemote creates a predictor for the endpoint at url.
func NewRemote(url string, opts ...RemoteOption) *Remote {
	r := &Remote{
		url:    url,
		client: &http.Client{Timeout: defaultRemoteTimeout},
	}
	v := defaultModelVersion
	r.version.Store(&v)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Predict implements scoring.Predictor.
func (r *Remote) Predict(ctx context.Context, q model.RatingQuery) (float64, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := json.Marshal(remoteRequest(q))
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", scoring.ErrUnknownUser, q.UserID)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: %d", ErrRemoteStatus, resp.StatusCode)
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRemoteDecode, err)
	}
	if err := validation.Struct(out); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRemoteDecode, err)
	}
	if out.ModelVersion != "" && out.ModelVersion != *r.version.Load() {
		r.version.Store(&out.ModelVersion)
	}
	return *out.Score, nil
}

// ModelVersion returns the version last reported by the endpoint, or the
// configured one before any response carried it.
func (r *Remote) ModelVersion() string {
	return *r.version.Load()
}

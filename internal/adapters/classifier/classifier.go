// Package classifier sends uploaded images to a remote image classifier.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/reel/internal/adapters/breaker"
	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/pkg/metrics"
	"github.com/okian/reel/pkg/validation"
)

const (
	defaultTimeout   = 5 * time.Second
	maxResponseBytes = 1 << 16
)

// Sentinel kinds for classifier errors.
var (
	ErrUnavailable = errors.New("classifier unavailable")
	ErrBadResponse = errors.New("bad classifier response")
)

type response struct {
	PredictedLabel string    `json:"predictedLabel" validate:"required"`
	Scores         []float64 `json:"scores" validate:"required,min=1"`
}

// Option applies a configuration option to the Remote classifier.
type Option func(*Remote)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Remote) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithBreaker guards calls with b.
func WithBreaker(b *breaker.Breaker[model.Classification]) Option {
	return func(r *Remote) {
		r.breaker = b
	}
}

// Remote POSTs raw image bytes to url and expects
// {"predictedLabel": string, "scores": [float]}.
type Remote struct {
	url     string
	client  *http.Client
	breaker *breaker.Breaker[model.Classification]
}

// NewRemote creates a classifier client for url.
func NewRemote(url string, opts ...Option) *Remote {
	r := &Remote{url: url, client: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the predicted label of image. The probability is the
// highest score the classifier reported.
func (r *Remote) Classify(ctx context.Context, image []byte, contentType string) (model.Classification, error) {
	call := func() (model.Classification, error) {
		return r.classify(ctx, image, contentType)
	}
	if r.breaker == nil {
		return call()
	}
	c, err := r.breaker.Execute(call)
	if errors.Is(err, breaker.ErrOpen) {
		metrics.RecordErrorByComponent("classifier", "circuit_open")
		return c, errors.Join(ErrUnavailable, err)
	}
	return c, err
}

func (r *Remote) classify(ctx context.Context, image []byte, contentType string) (model.Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(image))
	if err != nil {
		return model.Classification{}, fmt.Errorf("create request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Classification{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.Classification{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Classification{}, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Classification{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if err := validation.Struct(out); err != nil {
		return model.Classification{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return model.Classification{Label: out.PredictedLabel, Probability: slices.Max(out.Scores)}, nil
}

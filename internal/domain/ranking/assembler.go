// Package ranking turns a candidate list into ranked candidates for one user.
//
// The output keeps candidate order: ranked[i] always describes candidates[i].
// Nothing is sorted or filtered here.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/internal/domain/scoring"
	"github.com/okian/reel/pkg/metrics"
)

const (
	defaultPerCallBudget    = 250 * time.Millisecond
	defaultMaxRequestBudget = 10 * time.Second
)

// Assembler scores candidates through a BatchScorer and normalizes the result.
type Assembler struct {
	scorer     BatchScorer
	perCall    time.Duration
	maxRequest time.Duration
}

// NewAssembler creates an assembler on top of scorer.
func NewAssembler(scorer BatchScorer, opts ...Option) *Assembler {
	a := &Assembler{
		scorer:     scorer,
		perCall:    defaultPerCallBudget,
		maxRequest: defaultMaxRequestBudget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns one ranked candidate per movie in candidates, in the same order.
func (a *Assembler) Assemble(ctx context.Context, userID string, candidates []model.Movie) ([]model.RankedCandidate, error) {
	return a.AssembleWithProgress(ctx, userID, candidates, nil)
}

// AssembleWithProgress is Assemble reporting scoring progress to onProgress.
func (a *Assembler) AssembleWithProgress(ctx context.Context, userID string, candidates []model.Movie, onProgress ProgressFunc) ([]model.RankedCandidate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUser
	}
	if len(candidates) == 0 {
		return []model.RankedCandidate{}, nil
	}

	queries := make([]model.RatingQuery, len(candidates))
	for i, m := range candidates {
		queries[i] = model.RatingQuery{UserID: userID, MovieID: strconv.Itoa(m.ID)}
	}

	ctx, cancel := context.WithTimeout(ctx, a.Budget(len(candidates)))
	defer cancel()

	raw, err := a.scorer.ScoreAll(ctx, queries, onProgress)
	if err != nil {
		if errors.Is(err, ErrPredictionFailed) || errors.Is(err, ErrBackpressure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: user %s: %w", ErrPredictionFailed, userID, err)
	}
	if len(raw) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", ErrPredictionFailed, len(raw), len(candidates))
	}

	ranked := make([]model.RankedCandidate, len(candidates))
	for i, x := range raw {
		score, err := scoring.NormalizeChecked(x)
		if err != nil {
			return nil, QueryError(queries[i], err)
		}
		metrics.RecordNormalizedScore(score)
		ranked[i] = model.RankedCandidate{MovieID: candidates[i].ID, NormalizedScore: score}
	}
	return ranked, nil
}

// Budget returns the deadline for scoring n candidates.
func (a *Assembler) Budget(n int) time.Duration {
	d := a.perCall * time.Duration(n)
	if d <= 0 || d > a.maxRequest {
		return a.maxRequest
	}
	return d
}

// PerCallBudget returns the deadline of a single predictor call.
func (a *Assembler) PerCallBudget() time.Duration {
	return a.perCall
}

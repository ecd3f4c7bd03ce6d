// Package search runs full-text title queries over the catalog.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/pkg/metrics"
)

const (
	batchSize    = 500
	defaultLimit = 20
)

// Catalog resolves hit ids to movies.
type Catalog interface {
	Get(id int) (model.Movie, error)
	All() []model.Movie
}

// Result is one page of matches in relevance order.
type Result struct {
	Query  string
	Total  uint64
	Movies []model.Movie
}

// Index is an in-memory bleve index of movie titles. It is safe for
// concurrent use.
type Index struct {
	index   bleve.Index
	catalog Catalog
}

// Build indexes every movie in catalog. An empty catalog gives an empty index.
func Build(ctx context.Context, catalog Catalog) (*Index, error) {
	movies := catalog.All()

	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	for i := 0; i < len(movies); i += batchSize {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return nil, err
		}
		end := min(i+batchSize, len(movies))
		batch := idx.NewBatch()
		for _, m := range movies[i:end] {
			id := strconv.Itoa(m.ID)
			if err := batch.Index(id, map[string]any{fieldID: id, fieldTitle: m.Title}); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("index movie %d: %w", m.ID, err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index batch: %w", err)
		}
	}

	return &Index{index: idx, catalog: catalog}, nil
}

// Search returns up to limit movies whose title matches q. An empty q lists
// the catalog from the start.
func (s *Index) Search(ctx context.Context, q string, limit int) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSearch(float64(time.Since(start).Milliseconds()))
	}()

	if limit <= 0 {
		limit = defaultLimit
	}
	q = strings.TrimSpace(q)
	res := Result{Query: q, Movies: []model.Movie{}}

	if q == "" {
		all := s.catalog.All()
		res.Total = uint64(len(all))
		res.Movies = all[:min(limit, len(all))]
		return res, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, 0, false)
	sr, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return res, fmt.Errorf("execute search: %w", err)
	}

	res.Total = sr.Total
	for _, hit := range sr.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		m, err := s.catalog.Get(id)
		if err != nil {
			continue
		}
		res.Movies = append(res.Movies, m)
	}
	return res, nil
}

// DocCount returns the number of indexed movies.
func (s *Index) DocCount() uint64 {
	n, err := s.index.DocCount()
	if err != nil {
		return 0
	}
	return n
}

// Close releases the index.
func (s *Index) Close() error {
	return s.index.Close()
}

func buildQuery(q string) query.Query {
	match := bleve.NewMatchQuery(q)
	match.SetField(fieldTitle)
	match.SetBoost(3.0)
	queries := []query.Query{match}

	if len(q) >= 3 {
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetField(fieldTitle)
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.8)
		queries = append(queries, fuzzy)
	}
	if len(q) >= 2 {
		prefix := bleve.NewPrefixQuery(strings.ToLower(q))
		prefix.SetField(fieldTitle)
		prefix.SetBoost(0.5)
		queries = append(queries, prefix)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

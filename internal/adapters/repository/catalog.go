// Package repository loads the read-only data sets the service ranks over:
// the movie catalog and the user profiles.
package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/okian/reel/internal/domain/model"
)

// Catalog is an ordered, immutable list of movies. It is safe for
// concurrent use.
type Catalog struct {
	movies []model.Movie
	index  map[int]int // movie id -> position
}

// LoadCatalog reads the catalog CSV at path.
func LoadCatalog(ctx context.Context, path string) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	c, err := ParseCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog reads "movieId,title[,...]" records. The first row is a
// header and is skipped. Extra columns such as genres are ignored.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMalformedCatalog)
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedCatalog, err)
	}

	c := &Catalog{index: make(map[int]int)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d: want at least 2 fields, got %d", ErrMalformedCatalog, line, len(rec))
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: movie id %q", ErrMalformedCatalog, line, rec[0])
		}
		title := strings.TrimSpace(rec[1])
		if title == "" {
			return nil, fmt.Errorf("%w: line %d: empty title", ErrMalformedCatalog, line)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate movie id %d", ErrMalformedCatalog, line, id)
		}

		c.index[id] = len(c.movies)
		c.movies = append(c.movies, model.Movie{ID: id, Title: title})
	}
	return c, nil
}

// NewCatalog builds a catalog from movies in the given order.
func NewCatalog(movies []model.Movie) (*Catalog, error) {
	c := &Catalog{
		movies: make([]model.Movie, 0, len(movies)),
		index:  make(map[int]int, len(movies)),
	}
	for _, m := range movies {
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate movie id %d", ErrMalformedCatalog, m.ID)
		}
		c.index[m.ID] = len(c.movies)
		c.movies = append(c.movies, m)
	}
	return c, nil
}

// Get returns the movie with id.
func (c *Catalog) Get(id int) (model.Movie, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Movie{}, fmt.Errorf("%w: %d", ErrMovieNotFound, id)
	}
	return c.movies[i], nil
}

// All returns a copy of the catalog in file order.
func (c *Catalog) All() []model.Movie {
	out := make([]model.Movie, len(c.movies))
	copy(out, c.movies)
	return out
}

// Len returns the number of movies.
func (c *Catalog) Len() int {
	return len(c.movies)
}

// Subset returns the movies with the given ids in catalog order. Repeated ids
// are collapsed. An empty ids list selects the whole catalog.
func (c *Catalog) Subset(ids []int) ([]model.Movie, error) {
	if len(ids) == 0 {
		return c.All(), nil
	}
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrMovieNotFound, id)
		}
		want[id] = struct{}{}
	}
	out := make([]model.Movie, 0, len(want))
	for _, m := range c.movies {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/pkg/validation"
)

type watchedRecord struct {
	MovieID int     `json:"movieId" validate:"gt=0"`
	Rating  float64 `json:"rating" validate:"gte=0,lte=5"`
}

type profileRecord struct {
	ID      int             `json:"id" validate:"gt=0"`
	Name    string          `json:"name" validate:"required"`
	Image   string          `json:"image"`
	Watched []watchedRecord `json:"watched" validate:"dive"`
}

// Profiles holds the known users and their viewing history.
type Profiles struct {
	catalog  *Catalog
	profiles []model.Profile
	index    map[int]int
}

// LoadProfiles reads a JSON array of profiles from path. Every watched movie
// must exist in catalog.
func LoadProfiles(ctx context.Context, path string, catalog *Catalog) (*Profiles, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadProfiles, err)
	}
	p, err := ParseProfiles(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProfiles decodes and validates profiles against catalog.
func ParseProfiles(data []byte, catalog *Catalog) (*Profiles, error) {
	var recs []profileRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProfile, err)
	}

	p := &Profiles{
		catalog:  catalog,
		profiles: make([]model.Profile, 0, len(recs)),
		index:    make(map[int]int, len(recs)),
	}
	for i, rec := range recs {
		if err := validation.Struct(rec); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedProfile, i, err)
		}
		if _, dup := p.index[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate profile id %d", ErrMalformedProfile, rec.ID)
		}

		prof := model.Profile{ID: rec.ID, Name: rec.Name, Image: rec.Image, Watched: make([]model.WatchedMovie, len(rec.Watched))}
		for j, w := range rec.Watched {
			if _, err := catalog.Get(w.MovieID); err != nil {
				return nil, fmt.Errorf("%w: profile %d: %w", ErrMalformedProfile, rec.ID, err)
			}
			prof.Watched[j] = model.WatchedMovie{MovieID: w.MovieID, Rating: w.Rating}
		}

		p.index[rec.ID] = len(p.profiles)
		p.profiles = append(p.profiles, prof)
	}
	return p, nil
}

// Get returns the profile with id.
func (p *Profiles) Get(id int) (model.Profile, error) {
	i, ok := p.index[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("%w: %d", ErrProfileNotFound, id)
	}
	return p.profiles[i], nil
}

// All returns the profiles in file order.
func (p *Profiles) All() []model.Profile {
	out := make([]model.Profile, len(p.profiles))
	copy(out, p.profiles)
	return out
}

// Len returns the number of profiles.
func (p *Profiles) Len() int {
	return len(p.profiles)
}

// Watched returns the movies profile id has watched, in history order.
func (p *Profiles) Watched(id int) ([]model.Movie, error) {
	prof, err := p.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Movie, len(prof.Watched))
	for i, w := range prof.Watched {
		// Checked against the catalog at load time.
		out[i], _ = p.catalog.Get(w.MovieID)
	}
	return out, nil
}

package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// MovieHandler serves the catalog.
type MovieHandler struct {
	deps     MovieDependencies
	maxLimit int
}

// NewMovieHandler creates a new movie handler.
func NewMovieHandler(deps MovieDependencies, maxLimit int) *MovieHandler {
	return &MovieHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetMovie handles GET /api/movies/{id}.
func (h *MovieHandler) HandleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	m, err := h.deps.Movie(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleTrending handles GET /api/movies/trending.
func (h *MovieHandler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Trending(r.Context()))
}

// HandleSearch handles GET /api/movies?q=&limit=.
func (h *MovieHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = n
	}
	limit = min(limit, h.maxLimit)

	res, err := h.deps.SearchMovies(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathID(r *http.Request, name string) (int, error) {
	v := r.PathValue(name)
	id, err := strconv.Atoi(v)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s %q is not a positive integer", ErrBadRequest, name, v)
	}
	return id, nil
}

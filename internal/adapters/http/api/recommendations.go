package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// RecommendationHandler handles GET /api/recommendations/{userId}.
type RecommendationHandler struct {
	deps RecommendationDependencies
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(deps RecommendationDependencies) *RecommendationHandler {
	return &RecommendationHandler{deps: deps}
}

// HandleGetRecommendations ranks the trending movies for the user. Items keep
// trending order. refresh=true skips the cache.
func (h *RecommendationHandler) HandleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: refresh must be a boolean", ErrBadRequest))
			return
		}
		refresh = b
	}

	rec, err := h.deps.Recommend(r.Context(), r.PathValue("userId"), refresh)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

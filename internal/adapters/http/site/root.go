// Package site serves the embedded single page front end.
package site

import (
	"context"
	"errors"
	"net/http"
)

// Error constants
var (
	ErrAssets = errors.New("site assets missing")
	ErrServe  = errors.New("site serve failed")
)

// Register attaches the front end to mux. It answers every GET that no
// more specific route claims.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", NewRootHandler())
}

// RootHandler serves the embedded static files.
type RootHandler struct {
	files http.Handler
}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{files: http.FileServer(FS())}
}

// ServeHTTP serves index.html for / and the asset for anything else.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	h.files.ServeHTTP(w, r)
}

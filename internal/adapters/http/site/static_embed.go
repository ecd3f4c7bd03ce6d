package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// FS returns an http.FileSystem rooted at the embedded static directory.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// static is embedded at build time; Sub only fails on a bad path.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// Assets lists the embedded file names, or ErrAssets when none are present.
func Assets() ([]string, error) {
	entries, err := fs.ReadDir(staticFS, "static")
	if err != nil || len(entries) == 0 {
		return nil, ErrAssets
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

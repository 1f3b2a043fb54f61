package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler that serves the status panel.
//
// When dir names an existing directory the assets are read from it;
// otherwise the embedded copy is used. Paths without a file extension are
// panel routes (e.g. /devices/stage-timer) and receive index.html. Missing
// assets get a 404.
//
// Returns:
//   - http.Handler: Panel handler, to be mounted at the server root
//   - error: If the embedded assets are missing (build error)
func Handler(dir string) (http.Handler, error) {
	var fsys fs.FS
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fsys = os.DirFS(dir)
		}
	}
	if fsys == nil {
		sub, err := fs.Sub(content, "web")
		if err != nil {
			return nil, fmt.Errorf("panel: loading embedded assets: %w", err)
		}
		fsys = sub
	}
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, fmt.Errorf("panel: index.html: %w", err)
	}

	fileServer := http.FileServerFS(fsys)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The panel is small and changes with each release
		w.Header().Set("Cache-Control", "no-cache")

		name := path.Clean(r.URL.Path)
		if name == "/" || name == "." {
			fileServer.ServeHTTP(w, r)
			return
		}

		if _, err := fs.Stat(fsys, name[1:]); err != nil {
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/"
			fileServer.ServeHTTP(w, r2)
			return
		}

		fileServer.ServeHTTP(w, r)
	}), nil
}

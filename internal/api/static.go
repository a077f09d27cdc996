package api

import (
	"net/http"
	"path/filepath"
	"strings"
)

// spaHandler serves the frontend build. Unknown paths fall back to
// index.html so client-side routes survive a page reload.
type spaHandler struct {
	staticDir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	if f, err := http.Dir(h.staticDir).Open(strings.TrimPrefix(path, "/")); err == nil {
		f.Close()
		http.FileServer(http.Dir(h.staticDir)).ServeHTTP(w, req)
		return
	}

	// Unknown path: hand the client router its entry point under the
	// original URL.
	http.ServeFile(w, req, filepath.Join(h.staticDir, "index.html"))
}

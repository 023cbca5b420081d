package handler

import (
	"net/http"
	"os"
	"path/filepath"
)

// DefaultIndex is served for GET / when present in the static directory.
const DefaultIndex = "hafsql.html"

// StaticHandler serves the browser front end from a directory.
type StaticHandler struct {
	dir   string
	files http.Handler
}

// NewStaticHandler creates a StaticHandler rooted at dir.
func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{dir: dir, files: http.FileServer(http.Dir(dir))}
}

// Index serves DefaultIndex, falling back to the directory's index.html.
func (h *StaticHandler) Index(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.dir, DefaultIndex)
	if _, err := os.Stat(index); err == nil {
		http.ServeFile(w, r, index)
		return
	}
	h.files.ServeHTTP(w, r)
}

// ServeHTTP serves files below the directory.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.files.ServeHTTP(w, r)
}

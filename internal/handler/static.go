package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ClientHandler serves the browser runtime that hosts the provider SDK and
// executes session commands. Unknown paths fall back to index.html so the
// runtime can route client-side.
type ClientHandler struct {
	files     fs.FS
	indexFile string
}

func NewClientHandler(dir string) *ClientHandler {
	return &ClientHandler{
		files:     os.DirFS(dir),
		indexFile: "index.html",
	}
}

func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		name = strings.TrimPrefix(r.URL.Path, "/")
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")

	if name != "" {
		if info, err := fs.Stat(h.files, name); err == nil && !info.IsDir() {
			http.ServeFileFS(w, r, h.files, name)
			return
		}
	}

	if _, err := fs.Stat(h.files, h.indexFile); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.files, h.indexFile)
}

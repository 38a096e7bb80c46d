package api

import (
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"streamhub/internal/blob"
)

// MediaHandler serves assets written by the local blob store.
type MediaHandler struct {
	store *blob.LocalStore
}

func NewMediaHandler(store *blob.LocalStore) *MediaHandler {
	return &MediaHandler{store: store}
}

// GET /media/{kind}/{name}
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	publicID := path.Join(chi.URLParam(r, "kind"), chi.URLParam(r, "name"))

	file, err := h.store.Open(publicID)
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidPath) {
		notFound(w, "Media not found")
		return
	}
	if err != nil {
		slog.Error("error opening media file", "error", err, "public_id", publicID)
		internalError(w, "")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		slog.Error("error reading media file info", "error", err, "public_id", publicID)
		internalError(w, "")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Disposition", "inline")
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"streamhub/internal/db"
)

type ChannelHandler struct {
	channels *db.ChannelRepository
}

func NewChannelHandler(channels *db.ChannelRepository) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

// GET /users/c/{username}
func (h *ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) {
	viewer := CurrentUser(r)
	if viewer == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		badRequest(w, "Username is required")
		return
	}

	profile, err := h.channels.Profile(r.Context(), username, viewer.ID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Channel not found")
		return
	}
	if err != nil {
		slog.Error("error loading channel profile", "error", err, "username", username)
		internalError(w, "")
		return
	}

	writeSuccess(w, http.StatusOK, profile, "Channel profile fetched successfully")
}

// GET /users/watch-history
func (h *ChannelHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "Unauthorized request")
		return
	}

	history, err := h.channels.WatchHistory(r.Context(), user.ID)
	if err != nil {
		slog.Error("error loading watch history", "error", err, "user_id", user.ID)
		internalError(w, "")
		return
	}

	writeSuccess(w, http.StatusOK, history, "Watch history fetched successfully")
}

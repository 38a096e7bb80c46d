package api

import (
	"log/slog"
	"net/http"

	"streamhub/internal/db"
)

type HealthHandler struct {
	database *db.DB
}

func NewHealthHandler(database *db.DB) *HealthHandler {
	return &HealthHandler{database: database}
}

// GET /healthcheck
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.database.PingContext(r.Context()); err != nil {
		slog.Error("error pinging database", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Health check failed", "database: unreachable")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"status": "OK",
		"checks": map[string]string{
			"database": "ok",
		},
	}, "Health check passed")
}

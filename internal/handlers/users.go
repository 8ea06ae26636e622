package handlers

import (
	"net/http"

	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/middleware"
)

// UserHandler serves the user directory.
type UserHandler struct {
	Profiles ProfileDirectory
}

// Explore handles GET /api/v1/users requests, returning every profile except
// the caller's own.
func (h UserHandler) Explore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	profiles, err := h.Profiles.List(ctx, uid)
	if err != nil {
		logging.FromContext(ctx).Error("list profiles failed", "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"users": profiles})
}

// Profile handles GET /api/v1/users/profile?uid= requests.
func (h UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		uid, _ = middleware.UserID(ctx)
	}
	if uid == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "uid is required"})
		return
	}

	profile, err := h.Profiles.Get(ctx, uid)
	if err != nil {
		logging.FromContext(ctx).Warn("profile lookup failed", "uid", uid, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, profile)
}

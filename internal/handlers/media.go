package handlers

import (
	"errors"
	"net/http"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/media"
	"github.com/syncovids/backend/internal/middleware"
)

// MediaHandler serves the media library and resolver endpoints.
type MediaHandler struct {
	Library        MediaLibrary
	Resolver       MediaResolver
	Profiles       ProfileDirectory
	MaxUploadBytes int64
}

// HandleLibrary handles GET (list), POST (upload), and DELETE (remove) on
// /api/v1/media.
func (h MediaHandler) HandleLibrary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.upload(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h MediaHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	items, err := h.Library.List(ctx, uid)
	if err != nil {
		logging.FromContext(ctx).Error("list media failed", "uid", uid, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"items": items})
}

func (h MediaHandler) upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := logging.StartSpan(r.Context(), "media.upload")
	defer span.End()
	logger := logging.FromContext(ctx)
	uid, _ := middleware.UserID(ctx)

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("upload missing file part", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file part is required"})
		return
	}
	defer file.Close()

	item, err := h.Library.Upload(ctx, uid, header.Filename, file, header.Size, nil)
	if err != nil {
		logger.Error("upload failed", "uid", uid, "filename", header.Filename, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, item)
}

func (h MediaHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	storagePath, err := pathParam(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Library.Delete(ctx, uid, storagePath); err != nil {
		logging.FromContext(ctx).Warn("delete media failed", "uid", uid, "path", storagePath, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Resolve handles GET /api/v1/media/resolve requests. The target may be
// given as a storage path or a file id.
func (h MediaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	storagePath, err := pathParam(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	item, err := h.Resolver.Resolve(ctx, storagePath)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logging.FromContext(ctx).Error("resolve media failed", "path", storagePath, "error", err)
		}
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, item)
}

// ProfilePicture handles POST /api/v1/users/profile-picture requests. The
// uploaded image replaces any previous one and the directory profile is
// updated with the new URL.
func (h MediaHandler) ProfilePicture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "media.profile_picture")
	defer span.End()
	logger := logging.FromContext(ctx)
	uid, _ := middleware.UserID(ctx)

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("profile picture missing file part", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file part is required"})
		return
	}
	defer file.Close()

	url, err := h.Library.UploadProfilePicture(ctx, uid, file, header.Size)
	if err != nil {
		logger.Error("profile picture upload failed", "uid", uid, "error", err)
		respondError(ctx, w, err)
		return
	}

	if err := h.Profiles.SetPicture(ctx, uid, url); err != nil {
		logger.Error("profile picture record failed", "uid", uid, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"profilePicture": url})
}

// pathParam extracts the target storage path from either the path or the id
// query parameter.
func pathParam(r *http.Request) (string, error) {
	if storagePath := r.URL.Query().Get("path"); storagePath != "" {
		return storagePath, nil
	}
	if fileID := r.URL.Query().Get("id"); fileID != "" {
		return media.PathForID(fileID)
	}
	return "", apperr.Validation("path or id is required")
}

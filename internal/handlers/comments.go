package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/middleware"
)

// CommentHandler serves the one-shot comment endpoints. Realtime delivery of
// new comments rides the websocket session instead.
type CommentHandler struct {
	Comments CommentStore
	Profiles ProfileDirectory
}

type submitCommentRequest struct {
	FileID string `json:"fileId"`
	Text   string `json:"text"`
}

// Handle dispatches GET (list), POST (submit), and DELETE on /api/v1/comments.
func (h CommentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.submit(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h CommentHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "fileId is required"})
		return
	}

	comments, err := h.Comments.List(ctx, fileID)
	if err != nil {
		logging.FromContext(ctx).Error("list comments failed", "fileId", fileID, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"comments": comments})
}

func (h CommentHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	uid, _ := middleware.UserID(ctx)

	var req submitCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	authorName := "Anonymous"
	avatarURL := ""
	if profile, err := h.Profiles.Get(ctx, uid); err == nil {
		authorName = profile.Username
		avatarURL = profile.ProfilePicture
	}

	id, err := h.Comments.Submit(ctx, req.FileID, uid, authorName, avatarURL, req.Text)
	if err != nil {
		logger.Warn("submit comment failed", "fileId", req.FileID, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": id})
}

func (h CommentHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	commentID := r.URL.Query().Get("id")
	if commentID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	if err := h.Comments.Delete(ctx, commentID, uid); err != nil {
		logging.FromContext(ctx).Warn("delete comment failed", "id", commentID, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

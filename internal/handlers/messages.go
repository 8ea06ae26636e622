package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/syncovids/backend/internal/feeds"
	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/middleware"
	"github.com/syncovids/backend/internal/models"
)

// Messenger captures the one-shot messaging operations for a single viewer.
type Messenger interface {
	Conversations(ctx context.Context) ([]feeds.ConversationView, error)
	Thread(ctx context.Context, otherUID string) ([]models.Message, error)
	SendMessage(ctx context.Context, recipientUID, text string) error
}

// MessageHandler serves the conversation and message endpoints. Each request
// gets a messenger scoped to the authenticated viewer.
type MessageHandler struct {
	Messengers func(uid string) Messenger
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Conversations handles GET /api/v1/conversations requests.
func (h MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	views, err := h.Messengers(uid).Conversations(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list conversations failed", "uid", uid, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"conversations": views})
}

// Thread handles GET /api/v1/messages?with= requests. Opening a thread
// zeroes the viewer's unread counter for it.
func (h MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	uid, _ := middleware.UserID(ctx)

	otherUID := r.URL.Query().Get("with")
	if otherUID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "with is required"})
		return
	}

	messages, err := h.Messengers(uid).Thread(ctx, otherUID)
	if err != nil {
		logging.FromContext(ctx).Warn("open thread failed", "uid", uid, "with", otherUID, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"messages": messages})
}

// Send handles POST /api/v1/messages requests.
func (h MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	uid, _ := middleware.UserID(ctx)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid message payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Messengers(uid).SendMessage(ctx, req.To, req.Text); err != nil {
		logger.Warn("send message failed", "uid", uid, "to", req.To, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"status": "sent"})
}

// HandleMessages dispatches GET (thread) and POST (send) on /api/v1/messages.
func (h MessageHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.Thread(w, r)
	case http.MethodPost:
		h.Send(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

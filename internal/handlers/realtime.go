package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/feeds"
	"github.com/syncovids/backend/internal/logging"
	"github.com/syncovids/backend/internal/middleware"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/profiles"
	"github.com/syncovids/backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers enforce cookies, not origins, and this API is token-based.
		return true
	},
}

// RealtimeHandler upgrades authenticated requests to websocket sessions that
// carry the live comment and conversation feeds.
type RealtimeHandler struct {
	Hub      *ws.Hub
	Store    docstore.Store
	Profiles *profiles.Service
}

// Serve handles GET /ws requests.
func (h RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	uid, ok := middleware.UserID(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := newFeedSession(h.Store, h.Profiles, h.Hub, uid)
	client := ws.NewClient(conn, uid, h.Hub, session.handle, session.dispose, logger)
	h.Hub.RegisterClient(client)
	client.Start()
}

// feedSession owns the per-connection feed state: one comment feed and one
// messenger, both torn down when the socket closes.
type feedSession struct {
	ctx      context.Context
	cancel   context.CancelFunc
	uid      string
	comments *feeds.CommentFeed
	msgr     *feeds.Messenger
	profiles *profiles.Service
	hub      *ws.Hub
}

func newFeedSession(store docstore.Store, profileSvc *profiles.Service, hub *ws.Hub, uid string) *feedSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &feedSession{
		ctx:      ctx,
		cancel:   cancel,
		uid:      uid,
		comments: feeds.NewCommentFeed(store),
		msgr:     feeds.NewMessenger(store, profileSvc, uid),
		profiles: profileSvc,
		hub:      hub,
	}
}

func (s *feedSession) dispose() {
	s.comments.Close()
	s.msgr.Dispose()
	s.cancel()
}

type commentsCommand struct {
	FileID string `json:"fileId"`
	Text   string `json:"text"`
	ID     string `json:"id"`
}

type messagesCommand struct {
	With string `json:"with"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *feedSession) handle(client *ws.Client, cmd ws.Command) {
	switch cmd.Action {
	case "subscribeComments":
		var payload commentsCommand
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			s.sendError(client, "malformed command")
			return
		}
		err := s.comments.Subscribe(s.ctx, payload.FileID, func(comments []models.Comment) {
			client.Send(ws.Event{Type: "comments", Payload: map[string]any{
				"fileId":   payload.FileID,
				"comments": comments,
			}})
		}, func(err error) {
			s.sendError(client, "comment feed interrupted")
		})
		if err != nil {
			s.sendError(client, "could not subscribe to comments")
		}

	case "unsubscribeComments":
		s.comments.Close()

	case "submitComment":
		var payload commentsCommand
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			s.sendError(client, "malformed command")
			return
		}
		authorName := "Anonymous"
		avatarURL := ""
		if profile, err := s.profiles.Get(s.ctx, s.uid); err == nil {
			authorName = profile.Username
			avatarURL = profile.ProfilePicture
		}
		if _, err := s.comments.Submit(s.ctx, payload.FileID, s.uid, authorName, avatarURL, payload.Text); err != nil {
			s.sendError(client, commandErrorMessage(err))
		}

	case "deleteComment":
		var payload commentsCommand
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			s.sendError(client, "malformed command")
			return
		}
		if err := s.comments.Delete(s.ctx, payload.ID, s.uid); err != nil {
			s.sendError(client, commandErrorMessage(err))
		}

	case "subscribeConversations":
		err := s.msgr.SubscribeConversations(s.ctx, func(views []feeds.ConversationView) {
			client.Send(ws.Event{Type: "conversations", Payload: map[string]any{
				"conversations": views,
			}})
		}, func(err error) {
			s.sendError(client, "conversation feed interrupted")
		})
		if err != nil {
			s.sendError(client, "could not subscribe to conversations")
		}

	case "openThread":
		var payload messagesCommand
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			s.sendError(client, "malformed command")
			return
		}
		profile, err := s.msgr.OpenThread(s.ctx, payload.With, func(messages []models.Message) {
			client.Send(ws.Event{Type: "messages", Payload: map[string]any{
				"with":     payload.With,
				"messages": messages,
			}})
		}, func(err error) {
			s.sendError(client, "message feed interrupted")
		})
		if err != nil {
			s.sendError(client, commandErrorMessage(err))
			return
		}
		client.Send(ws.Event{Type: "thread", Payload: map[string]any{
			"with":    payload.With,
			"profile": profile,
		}})

	case "closeThread":
		s.msgr.CloseThread()

	case "sendMessage":
		var payload messagesCommand
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			s.sendError(client, "malformed command")
			return
		}
		if err := s.msgr.SendMessage(s.ctx, payload.To, payload.Text); err != nil {
			s.sendError(client, commandErrorMessage(err))
			return
		}
		// Recipients without an open thread still get nudged; their own
		// subscriptions carry the message itself.
		s.hub.Notify([]string{payload.To}, ws.Event{Type: "notification", Payload: map[string]string{
			"from": s.uid,
		}})

	default:
		s.sendError(client, "unknown action "+cmd.Action)
	}
}

func (s *feedSession) sendError(client *ws.Client, message string) {
	client.Send(ws.Event{Type: "error", Payload: map[string]string{"message": message}})
}

func commandErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, feeds.ErrSubmitInFlight) {
		return "a comment is already being submitted"
	}
	return apperr.UserMessage(err)
}

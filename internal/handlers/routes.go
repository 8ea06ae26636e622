package handlers

import (
	"net/http"

	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/middleware"
	"github.com/syncovids/backend/internal/profiles"
	"github.com/syncovids/backend/internal/ws"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Identity   IdentityService
	Verifier   middleware.TokenVerifier
	Profiles   ProfileDirectory
	ProfileSvc *profiles.Service
	Library    MediaLibrary
	Resolver   MediaResolver
	Comments   CommentStore
	Messengers func(uid string) Messenger
	Store      docstore.Store
	Hub        *ws.Hub
	Limiter    middleware.RateLimiter

	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authH := AuthHandler{Identity: deps.Identity}
	users := UserHandler{Profiles: deps.Profiles}
	media := MediaHandler{
		Library:        deps.Library,
		Resolver:       deps.Resolver,
		Profiles:       deps.Profiles,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	comments := CommentHandler{Comments: deps.Comments, Profiles: deps.Profiles}
	messages := MessageHandler{Messengers: deps.Messengers}
	realtime := RealtimeHandler{Hub: deps.Hub, Store: deps.Store, Profiles: deps.ProfileSvc}

	authed := middleware.Authenticate(deps.Verifier)
	limited := func(next http.HandlerFunc) http.Handler {
		if deps.Limiter == nil {
			return next
		}
		return middleware.RateLimit(deps.Limiter)(next)
	}

	mux.HandleFunc("/healthz", health.Handle)

	mux.Handle("/api/v1/auth/login", limited(authH.Login))
	mux.Handle("/api/v1/auth/signup", limited(authH.SignUp))
	mux.Handle("/api/v1/auth/refresh", limited(authH.Refresh))
	mux.Handle("/api/v1/auth/logout", limited(authH.Logout))

	mux.Handle("/api/v1/users", authed(http.HandlerFunc(users.Explore)))
	mux.Handle("/api/v1/users/profile", authed(http.HandlerFunc(users.Profile)))
	mux.Handle("/api/v1/users/profile-picture", authed(http.HandlerFunc(media.ProfilePicture)))

	mux.Handle("/api/v1/media", authed(http.HandlerFunc(media.HandleLibrary)))
	mux.Handle("/api/v1/media/resolve", authed(http.HandlerFunc(media.Resolve)))

	mux.Handle("/api/v1/comments", authed(http.HandlerFunc(comments.Handle)))

	mux.Handle("/api/v1/conversations", authed(http.HandlerFunc(messages.Conversations)))
	mux.Handle("/api/v1/messages", authed(http.HandlerFunc(messages.HandleMessages)))

	mux.Handle("/ws", authed(http.HandlerFunc(realtime.Serve)))
}

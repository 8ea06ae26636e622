package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/syncovids/backend/internal/auth"
	"github.com/syncovids/backend/internal/cache"
	"github.com/syncovids/backend/internal/config"
	"github.com/syncovids/backend/internal/db"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/feeds"
	"github.com/syncovids/backend/internal/handlers"
	"github.com/syncovids/backend/internal/identity"
	"github.com/syncovids/backend/internal/media"
	"github.com/syncovids/backend/internal/middleware"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/objectstore"
	"github.com/syncovids/backend/internal/profiles"
	"github.com/syncovids/backend/internal/repositories"
	"github.com/syncovids/backend/internal/ws"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, docStore docstore.Store, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, *ws.Hub, error) {
	objStore, err := buildObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	var (
		urlCache     media.URLCache
		profileCache profiles.Cache
	)
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		redisCache := cache.New(client, cfg.CacheTTL)
		urlCache = redisCache
		profileCache = redisCache
	}

	profileSvc := profiles.NewService(docStore, profileCache)
	resolver := media.NewResolver(objStore, urlCache)
	library := media.NewLibrary(objStore, resolver)

	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager(cfg.AccessTTL, cfg.RefreshTTL, cfg.JWTSecret, sessionStore)
	provider := identity.NewProvider(repositories.NewPostgresAccountRepository(pool), sessions, profileSvc)

	hub := ws.NewHub(logger)

	deps := handlers.Dependencies{
		Identity:   provider,
		Verifier:   sessions,
		Profiles:   profileSvc,
		ProfileSvc: profileSvc,
		Library:    library,
		Resolver:   resolver,
		Comments:   commentOps{store: docStore},
		Messengers: func(uid string) handlers.Messenger {
			return feeds.NewMessenger(docStore, profileSvc, uid)
		},
		Store:          docStore,
		Hub:            hub,
		Limiter:        middleware.NewClientRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, 5*time.Minute),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	return deps, hub, nil
}

func buildObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (objectstore.Store, error) {
	if cfg.Backend == "minio" {
		return objectstore.NewMinioStore(ctx, cfg)
	}
	return objectstore.NewS3Store(ctx, cfg)
}

// commentOps adapts the comment feed to the stateless REST surface. Every
// call gets a fresh feed so the in-flight submit guard stays scoped to a
// single realtime session, never shared across HTTP requests.
type commentOps struct {
	store docstore.Store
}

func (c commentOps) List(ctx context.Context, fileID string) ([]models.Comment, error) {
	return feeds.NewCommentFeed(c.store).List(ctx, fileID)
}

func (c commentOps) Submit(ctx context.Context, fileID, authorID, authorName, avatarURL, text string) (string, error) {
	return feeds.NewCommentFeed(c.store).Submit(ctx, fileID, authorID, authorName, avatarURL, text)
}

func (c commentOps) Delete(ctx context.Context, commentID, requesterID string) error {
	return feeds.NewCommentFeed(c.store).Delete(ctx, commentID, requesterID)
}

package handlers

import (
	"context"
	"io"

	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/objectstore"
)

// IdentityService captures the account lifecycle operations the auth
// handlers require.
type IdentityService interface {
	SignUp(ctx context.Context, email, password, displayName string) (*models.Account, models.SessionTokens, error)
	SignIn(ctx context.Context, email, password string) (*models.Account, models.SessionTokens, error)
	SignOut(ctx context.Context, refreshToken string)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Account(ctx context.Context, id string) (*models.Account, error)
}

// ProfileDirectory serves the user directory backing the explore page and
// chat counterpart lookups.
type ProfileDirectory interface {
	Get(ctx context.Context, uid string) (models.Profile, error)
	List(ctx context.Context, excludeUID string) ([]models.Profile, error)
	SetPicture(ctx context.Context, uid, url string) error
}

// MediaLibrary manages per-user stored media.
type MediaLibrary interface {
	List(ctx context.Context, uid string) ([]models.MediaItem, error)
	Upload(ctx context.Context, uid, filename string, r io.Reader, size int64, progress objectstore.ProgressFunc) (models.MediaItem, error)
	UploadProfilePicture(ctx context.Context, uid string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, uid, storagePath string) error
}

// MediaResolver maps a storage path to a playable media item.
type MediaResolver interface {
	Resolve(ctx context.Context, storagePath string) (models.MediaItem, error)
}

// CommentStore captures the one-shot comment operations used by the REST
// endpoints. The realtime path goes through feeds.CommentFeed directly.
type CommentStore interface {
	List(ctx context.Context, fileID string) ([]models.Comment, error)
	Submit(ctx context.Context, fileID, authorID, authorName, avatarURL, text string) (string, error)
	Delete(ctx context.Context, commentID, requesterID string) error
}

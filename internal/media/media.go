// Package media resolves stored object paths into playable items and manages
// a user's media library.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/objectstore"
)

var (
	videoExtensions = []string{".mp4", ".webm", ".ogg", ".mov", ".avi", ".mkv", ".m4v"}
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}
	audioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac", ".wma"}
)

// uploadPrefix matches the unix-millisecond prefix stamped at upload time.
var uploadPrefix = regexp.MustCompile(`^\d+_`)

// KindForFilename classifies a filename by its extension. The video set is
// tested first, so ambiguous extensions (.ogg) classify as video.
func KindForFilename(name string) models.MediaKind {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return models.KindVideo
		}
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return models.KindImage
		}
	}
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return models.KindAudio
		}
	}
	return models.KindNone
}

// DisplayName strips the upload-time timestamp prefix from a filename.
func DisplayName(filename string) string {
	return uploadPrefix.ReplaceAllString(filename, "")
}

// FileID derives the comment-feed identifier for a storage path. The encoding
// is deterministic and collision-free for distinct paths.
func FileID(storagePath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(storagePath))
}

// PathForID reverses FileID back into the storage path.
func PathForID(fileID string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(fileID)
	if err != nil {
		return "", apperr.Validation("malformed file id")
	}
	return string(decoded), nil
}

// URLCache caches resolved download URLs. A nil cache disables caching.
type URLCache interface {
	GetURL(ctx context.Context, path string) (string, bool)
	SetURL(ctx context.Context, path, url string)
}

// Resolver maps storage paths to playable media items.
type Resolver struct {
	store objectstore.Store
	urls  URLCache
}

// NewResolver constructs a resolver over the given object store. cache may be
// nil.
func NewResolver(store objectstore.Store, cache URLCache) *Resolver {
	return &Resolver{store: store, urls: cache}
}

// Resolve maps a stored object path to a playable item. The caller renders a
// "no media" state on apperr.ErrNotFound instead of failing the page.
func (r *Resolver) Resolve(ctx context.Context, storagePath string) (models.MediaItem, error) {
	storagePath = strings.Trim(storagePath, "/")
	if storagePath == "" {
		return models.MediaItem{}, apperr.Validation("media path is required")
	}

	filename := path.Base(storagePath)

	info, err := r.store.Metadata(ctx, storagePath)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return models.MediaItem{}, apperr.NotFound("media " + storagePath)
		}
		return models.MediaItem{}, apperr.Transient(err)
	}

	url, err := r.downloadURL(ctx, storagePath)
	if err != nil {
		return models.MediaItem{}, apperr.Transient(err)
	}

	return models.MediaItem{
		Path:        storagePath,
		DisplayName: DisplayName(filename),
		Kind:        KindForFilename(filename),
		URL:         url,
		Size:        info.Size,
		CreatedAt:   info.CreatedAt,
	}, nil
}

func (r *Resolver) downloadURL(ctx context.Context, storagePath string) (string, error) {
	if r.urls != nil {
		if url, ok := r.urls.GetURL(ctx, storagePath); ok {
			return url, nil
		}
	}
	url, err := r.store.DownloadURL(ctx, storagePath)
	if err != nil {
		return "", err
	}
	if r.urls != nil {
		r.urls.SetURL(ctx, storagePath, url)
	}
	return url, nil
}

// Library lists, uploads, and deletes the media under a user's files prefix.
type Library struct {
	store    objectstore.Store
	resolver *Resolver
	nowFunc  func() time.Time
}

// NewLibrary constructs a library over the store and resolver.
func NewLibrary(store objectstore.Store, resolver *Resolver) *Library {
	return &Library{
		store:    store,
		resolver: resolver,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// filesPrefix is where a user's uploads live.
func filesPrefix(uid string) string {
	return fmt.Sprintf("users/%s/files/", uid)
}

// ProfilePicturePath is the fixed per-user profile image location.
func ProfilePicturePath(uid string) string {
	return fmt.Sprintf("users/%s/profile/profile_picture", uid)
}

// List returns the user's media, newest first. Objects with unrecognized
// extensions are excluded.
func (l *Library) List(ctx context.Context, uid string) ([]models.MediaItem, error) {
	objects, err := l.store.List(ctx, filesPrefix(uid))
	if err != nil {
		return nil, apperr.Transient(err)
	}

	var items []models.MediaItem
	for _, obj := range objects {
		filename := path.Base(obj.Path)
		kind := KindForFilename(filename)
		if kind == models.KindNone {
			continue
		}
		url, err := l.resolver.downloadURL(ctx, obj.Path)
		if err != nil {
			return nil, apperr.Transient(err)
		}
		items = append(items, models.MediaItem{
			Path:        obj.Path,
			DisplayName: DisplayName(filename),
			Kind:        kind,
			URL:         url,
			Size:        obj.Size,
			CreatedAt:   obj.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Upload stores a file under the user's prefix with a timestamp-prefixed name
// and returns the resolved item.
func (l *Library) Upload(ctx context.Context, uid, filename string, r io.Reader, size int64, progress objectstore.ProgressFunc) (models.MediaItem, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return models.MediaItem{}, apperr.Validation("filename is required")
	}

	storagePath := fmt.Sprintf("%s%d_%s", filesPrefix(uid), l.nowFunc().UnixMilli(), filename)
	if err := l.store.Upload(ctx, storagePath, r, size, progress); err != nil {
		return models.MediaItem{}, apperr.Transient(err)
	}

	return l.resolver.Resolve(ctx, storagePath)
}

// UploadProfilePicture stores a profile image and returns its URL.
func (l *Library) UploadProfilePicture(ctx context.Context, uid string, r io.Reader, size int64) (string, error) {
	storagePath := ProfilePicturePath(uid)
	if err := l.store.Upload(ctx, storagePath, r, size, nil); err != nil {
		return "", apperr.Transient(err)
	}
	url, err := l.store.DownloadURL(ctx, storagePath)
	if err != nil {
		return "", apperr.Transient(err)
	}
	return url, nil
}

// Delete removes an owned object. Paths outside the requester's files prefix
// are rejected before any remote call.
func (l *Library) Delete(ctx context.Context, uid, storagePath string) error {
	storagePath = strings.Trim(storagePath, "/")
	if !strings.HasPrefix(storagePath, filesPrefix(uid)) {
		return apperr.Permission("cannot delete media owned by another user")
	}
	if err := l.store.Delete(ctx, storagePath); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

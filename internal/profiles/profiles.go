// Package profiles manages the public user documents in the "users"
// collection: directory sync on sign-in, lookups, and the explore listing.
package profiles

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/models"
)

const collection = "users"

// Cache caches profile documents. A nil cache disables caching.
type Cache interface {
	GetProfile(ctx context.Context, uid string) (models.Profile, bool)
	SetProfile(ctx context.Context, profile models.Profile)
	DropProfile(ctx context.Context, uid string)
}

// Service reads and writes profile documents.
type Service struct {
	store docstore.Store
	cache Cache
}

// NewService constructs the profile service. cache may be nil.
func NewService(store docstore.Store, cache Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Sync creates the profile document for an account if it does not exist yet.
// An existing document is never overwritten.
func (s *Service) Sync(ctx context.Context, account models.Account) error {
	_, err := s.store.Get(ctx, collection, account.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return apperr.Transient(err)
	}

	username := strings.TrimSpace(account.DisplayName)
	if username == "" {
		if at := strings.Index(account.Email, "@"); at > 0 {
			username = account.Email[:at]
		} else {
			username = "Anonymous"
		}
	}

	data := map[string]any{
		"uid":       account.ID,
		"username":  username,
		"email":     account.Email,
		"createdAt": docstore.EncodeTime(time.Now().UTC()),
	}
	if err := s.store.Set(ctx, collection, account.ID, data, false); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

// Get fetches one profile by uid.
func (s *Service) Get(ctx context.Context, uid string) (models.Profile, error) {
	if s.cache != nil {
		if profile, ok := s.cache.GetProfile(ctx, uid); ok {
			return profile, nil
		}
	}

	doc, err := s.store.Get(ctx, collection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("user " + uid)
		}
		return models.Profile{}, apperr.Transient(err)
	}

	profile := fromDoc(doc)
	if s.cache != nil {
		s.cache.SetProfile(ctx, profile)
	}
	return profile, nil
}

// List returns every profile except the caller's own, sorted by username.
func (s *Service) List(ctx context.Context, excludeUID string) ([]models.Profile, error) {
	docs, err := s.store.Query(ctx, collection, nil, nil)
	if err != nil {
		return nil, apperr.Transient(err)
	}

	var out []models.Profile
	for _, doc := range docs {
		if doc.ID == excludeUID {
			continue
		}
		out = append(out, fromDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}

// SetPicture records a new profile-picture URL on the document.
func (s *Service) SetPicture(ctx context.Context, uid, url string) error {
	err := s.store.Update(ctx, collection, uid, map[string]any{"profilePicture": url})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperr.NotFound("user " + uid)
		}
		return apperr.Transient(err)
	}
	if s.cache != nil {
		s.cache.DropProfile(ctx, uid)
	}
	return nil
}

func fromDoc(doc docstore.Document) models.Profile {
	return models.Profile{
		UID:            docstore.String(doc.Data, "uid"),
		Username:       docstore.String(doc.Data, "username"),
		Email:          docstore.String(doc.Data, "email"),
		ProfilePicture: docstore.String(doc.Data, "profilePicture"),
		CreatedAt:      docstore.String(doc.Data, "createdAt"),
	}
}

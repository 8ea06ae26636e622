// Package feeds implements the live comment and conversation feeds as thin
// layers over docstore live queries. Each feed owns at most one subscription
// of its kind; establishing a replacement releases the previous one first.
package feeds

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/models"
)

const commentsCollection = "comments"

// ErrSubmitInFlight indicates a comment submission is already pending; the
// submit control stays disabled until the current one settles.
var ErrSubmitInFlight = errors.New("comment submission in flight")

// CommentFeed delivers the comments for one media file, newest first.
type CommentFeed struct {
	store docstore.Store

	mu       sync.Mutex
	sub      docstore.Subscription
	inFlight bool
}

// NewCommentFeed constructs a feed over the document store.
func NewCommentFeed(store docstore.Store) *CommentFeed {
	return &CommentFeed{store: store}
}

// Subscribe attaches a live query for the file's comments. Any previous
// subscription is released first. Snapshots arrive as the full current set,
// sorted client-side by creation time descending; the underlying query is
// intentionally unordered server-side.
func (f *CommentFeed) Subscribe(ctx context.Context, fileID string, deliver func([]models.Comment), onError func(error)) error {
	f.mu.Lock()
	if f.sub != nil {
		f.sub.Close()
		f.sub = nil
	}
	f.mu.Unlock()

	sub, err := f.store.LiveQuery(ctx, commentsCollection, []docstore.Filter{
		{Field: "fileId", Op: docstore.OpEqual, Value: fileID},
	}, nil)
	if err != nil {
		return apperr.Transient(err)
	}

	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	go func() {
		for snapshot := range sub.Snapshots() {
			comments := make([]models.Comment, 0, len(snapshot.Docs))
			for _, doc := range snapshot.Docs {
				comments = append(comments, commentFromDoc(doc))
			}
			sort.SliceStable(comments, func(i, j int) bool {
				return comments[i].CreatedAt.After(comments[j].CreatedAt)
			})
			deliver(comments)
		}
		if err := sub.Err(); err != nil && onError != nil {
			onError(apperr.Transient(err))
		}
	}()
	return nil
}

// Submit creates a comment with a server-assigned timestamp. Empty text after
// trimming is rejected before any remote call, and a second submission is
// blocked while one is in flight.
func (f *CommentFeed) Submit(ctx context.Context, fileID, authorID, authorName, avatarURL, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("comment text is required")
	}
	if fileID == "" || authorID == "" {
		return "", apperr.Validation("file and author are required")
	}

	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	f.inFlight = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	id, err := f.store.Add(ctx, commentsCollection, map[string]any{
		"fileId":     fileID,
		"authorId":   authorID,
		"authorName": authorName,
		"avatarUrl":  avatarURL,
		"text":       text,
		"createdAt":  docstore.ServerTimestamp,
	})
	if err != nil {
		return "", apperr.Transient(err)
	}
	return id, nil
}

// List returns a one-shot snapshot of the file's comments, newest first.
func (f *CommentFeed) List(ctx context.Context, fileID string) ([]models.Comment, error) {
	docs, err := f.store.Query(ctx, commentsCollection, []docstore.Filter{
		{Field: "fileId", Op: docstore.OpEqual, Value: fileID},
	}, nil)
	if err != nil {
		return nil, apperr.Transient(err)
	}

	comments := make([]models.Comment, 0, len(docs))
	for _, doc := range docs {
		comments = append(comments, commentFromDoc(doc))
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

// Delete removes a comment. Only the author may delete one.
func (f *CommentFeed) Delete(ctx context.Context, commentID, requesterID string) error {
	doc, err := f.store.Get(ctx, commentsCollection, commentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperr.NotFound("comment " + commentID)
		}
		return apperr.Transient(err)
	}

	if docstore.String(doc.Data, "authorId") != requesterID {
		return apperr.Permission("only the author may delete a comment")
	}

	if err := f.store.Delete(ctx, commentsCollection, commentID); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

// Close releases the active subscription, if any.
func (f *CommentFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.Close()
		f.sub = nil
	}
}

func commentFromDoc(doc docstore.Document) models.Comment {
	return models.Comment{
		ID:         doc.ID,
		FileID:     docstore.String(doc.Data, "fileId"),
		AuthorID:   docstore.String(doc.Data, "authorId"),
		AuthorName: docstore.String(doc.Data, "authorName"),
		AvatarURL:  docstore.String(doc.Data, "avatarUrl"),
		Text:       docstore.String(doc.Data, "text"),
		CreatedAt:  docstore.Time(doc.Data, "createdAt"),
	}
}

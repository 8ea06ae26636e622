// Package objectstore defines the narrow binary-object interface backed by an
// external store. Adapters exist for S3-compatible services and MinIO; the
// rest of the service never sees past this surface.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound indicates the backing object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// ProgressFunc receives upload progress. total is -1 when unknown.
type ProgressFunc func(transferred, total int64)

// Store is the object-store surface used by the media layer.
type Store interface {
	// Upload streams content to the given path, reporting progress as parts
	// complete. Uploads resume at the part level inside the adapter; callers
	// re-invoke the whole upload on failure.
	Upload(ctx context.Context, path string, r io.Reader, size int64, progress ProgressFunc) error
	// DownloadURL resolves a path to a fetchable URL.
	DownloadURL(ctx context.Context, path string) (string, error)
	// Metadata returns size and creation time; ErrObjectNotFound if absent.
	Metadata(ctx context.Context, path string) (ObjectInfo, error)
	// List returns the objects directly under a prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, path string) error
}

// progressReader invokes a ProgressFunc as bytes pass through.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	fn          ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.transferred += int64(n)
		p.fn(p.transferred, p.total)
	}
	return n, err
}

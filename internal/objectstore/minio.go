package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/syncovids/backend/internal/config"
)

// MinioStore implements Store backed by a MinIO (or other S3 API) endpoint.
// Selected over the AWS adapter via SYNCOVIDS_OBJECT_STORE=minio.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// NewMinioStore connects to the endpoint and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio store: endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	store := &MinioStore{client: client, bucket: cfg.Bucket, presignTTL: cfg.PresignTTL}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return store, nil
}

// Upload streams content to the bucket.
func (m *MinioStore) Upload(ctx context.Context, path string, r io.Reader, size int64, progress ProgressFunc) error {
	key := strings.TrimLeft(path, "/")
	if key == "" {
		return fmt.Errorf("minio store: empty key")
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, newProgressReader(r, size, progress), size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio upload %s: %w", key, err)
	}
	return nil
}

// DownloadURL returns a presigned GET URL.
func (m *MinioStore) DownloadURL(ctx context.Context, path string) (string, error) {
	key := strings.TrimLeft(path, "/")

	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return u.String(), nil
}

// Metadata returns size and creation time for an object.
func (m *MinioStore) Metadata(ctx context.Context, path string) (ObjectInfo, error) {
	key := strings.TrimLeft(path, "/")

	stat, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}

	return ObjectInfo{Path: key, Size: stat.Size, CreatedAt: stat.LastModified.UTC()}, nil
}

// List returns the objects under a prefix.
func (m *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.TrimLeft(prefix, "/")

	var out []ObjectInfo
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Path: obj.Key, Size: obj.Size, CreatedAt: obj.LastModified.UTC()})
	}
	return out, nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, path string) error {
	key := strings.TrimLeft(path, "/")
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

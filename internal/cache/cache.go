// Package cache provides a Redis-backed cache for presigned media URLs and
// directory profiles. All operations degrade to cache misses on Redis errors
// so a cache outage never takes the service down.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/syncovids/backend/internal/models"
)

// Cache key patterns
const (
	mediaURLKey = "media:url:%s"    // media:url:fileID-or-path
	profileKey  = "user:profile:%s" // user:profile:uid
)

// RedisCache caches resolved media URLs and user profiles in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a RedisCache with the provided entry TTL.
func New(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// GetURL returns a cached download URL for the storage path.
func (c *RedisCache) GetURL(ctx context.Context, path string) (string, bool) {
	url, err := c.client.Get(ctx, fmt.Sprintf(mediaURLKey, path)).Result()
	if err != nil {
		return "", false
	}
	return url, true
}

// SetURL caches a download URL for the storage path.
func (c *RedisCache) SetURL(ctx context.Context, path, url string) {
	c.client.Set(ctx, fmt.Sprintf(mediaURLKey, path), url, c.ttl)
}

// GetProfile returns a cached directory profile.
func (c *RedisCache) GetProfile(ctx context.Context, uid string) (models.Profile, bool) {
	data, err := c.client.Get(ctx, fmt.Sprintf(profileKey, uid)).Bytes()
	if err != nil {
		return models.Profile{}, false
	}
	var profile models.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return models.Profile{}, false
	}
	return profile, true
}

// SetProfile caches a directory profile.
func (c *RedisCache) SetProfile(ctx context.Context, profile models.Profile) {
	data, err := json.Marshal(profile)
	if err != nil {
		return
	}
	c.client.Set(ctx, fmt.Sprintf(profileKey, profile.UID), data, c.ttl)
}

// DropProfile evicts a cached profile after an update.
func (c *RedisCache) DropProfile(ctx context.Context, uid string) {
	c.client.Del(ctx, fmt.Sprintf(profileKey, uid))
}

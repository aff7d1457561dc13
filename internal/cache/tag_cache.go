// Package cache holds the thread-tag cache: a mapping from tag display
// name to the surface's tag id, backed by Redis with a live-lookup
// fallback against the ticket channel.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/surface"
)

const (
	tagKeyPrefix = "ticketbot:tag:"
	tagTTL       = 6 * time.Hour
)

// TagCache resolves forum tags by display name. Lookups hit Redis first
// and fall back to listing the channel's available tags, refreshing the
// cache as a side effect. A nil Redis client degrades to live lookups.
type TagCache struct {
	client  *redis.Client
	surface surface.Surface
	logger  *zap.Logger
}

// NewTagCache builds the cache.
func NewTagCache(client *redis.Client, surf surface.Surface, logger *zap.Logger) *TagCache {
	return &TagCache{client: client, surface: surf, logger: logger}
}

// GetByName resolves a tag by case-insensitive display name.
func (c *TagCache) GetByName(ctx context.Context, name string) (surface.Tag, bool) {
	if name == "" {
		return surface.Tag{}, false
	}
	key := tagKeyPrefix + strings.ToLower(name)

	if c.client != nil {
		id, err := c.client.Get(ctx, key).Result()
		if err == nil && id != "" {
			return surface.Tag{ID: id, Name: name}, true
		}
		if err != nil && err != redis.Nil {
			c.logger.Warn("tag cache read failed", zap.String("tag", name), zap.Error(err))
		}
	}

	tag, ok := c.liveLookup(ctx, name)
	if ok && c.client != nil {
		if err := c.client.Set(ctx, key, tag.ID, tagTTL).Err(); err != nil {
			c.logger.Warn("tag cache write failed", zap.String("tag", name), zap.Error(err))
		}
	}
	return tag, ok
}

// Refresh re-reads all available tags into the cache.
func (c *TagCache) Refresh(ctx context.Context) error {
	tags, err := c.surface.AvailableTags(ctx)
	if err != nil {
		return err
	}
	if c.client == nil {
		return nil
	}
	for _, tag := range tags {
		key := tagKeyPrefix + strings.ToLower(tag.Name)
		if err := c.client.Set(ctx, key, tag.ID, tagTTL).Err(); err != nil {
			c.logger.Warn("tag cache write failed", zap.String("tag", tag.Name), zap.Error(err))
		}
	}
	c.logger.Info("refreshed tag cache", zap.Int("tags", len(tags)))
	return nil
}

func (c *TagCache) liveLookup(ctx context.Context, name string) (surface.Tag, bool) {
	tags, err := c.surface.AvailableTags(ctx)
	if err != nil {
		c.logger.Warn("tag live lookup failed", zap.Error(err))
		return surface.Tag{}, false
	}
	for _, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			return tag, true
		}
	}
	return surface.Tag{}, false
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"personnage-gallery/internal/model"
)

const galleryKey = "gallery:images"

// GalleryCache keeps the rendered gallery listing in redis between writes.
type GalleryCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewGalleryCache(client *redisv9.Client, ttl time.Duration) *GalleryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &GalleryCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *GalleryCache) GetImages(ctx context.Context) ([]model.Image, bool, error) {
	raw, err := c.client.Get(ctx, galleryKey).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get gallery failed: %w", err)
	}

	var images []model.Image
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached gallery failed: %w", err)
	}
	return images, true, nil
}

func (c *GalleryCache) SetImages(ctx context.Context, images []model.Image) error {
	payload, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal gallery cache failed: %w", err)
	}
	if err := c.client.Set(ctx, galleryKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set gallery failed: %w", err)
	}
	return nil
}

func (c *GalleryCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, galleryKey).Err(); err != nil {
		return fmt.Errorf("redis delete gallery failed: %w", err)
	}
	return nil
}

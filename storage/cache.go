package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"alcove-api/domain"
)

const documentCacheKey = "alcove:dashboard"

type backend interface {
	Load(ctx context.Context) (*domain.Document, error)
	Update(ctx context.Context, mutate Mutate) (Outcome, error)
}

// Cache wraps a Store with Redis-backed caching of the whole document for
// read requests. Every Update evicts the cached copy, so a read after a
// write always reflects the committed state. Redis outages degrade to the
// backing store without failing the request.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Load(ctx context.Context) (*domain.Document, error) {
	if doc, ok := c.loadFromCache(ctx); ok {
		return doc, nil
	}
	doc, err := c.base.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, doc)
	return doc, nil
}

func (c *Cache) Update(ctx context.Context, mutate Mutate) (Outcome, error) {
	outcome, err := c.base.Update(ctx, mutate)
	if err != nil {
		return outcome, err
	}
	c.evict(ctx)
	return outcome, nil
}

func (c *Cache) loadFromCache(ctx context.Context) (*domain.Document, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, documentCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, documentCacheKey).Err()
		}
		return nil, false
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		_ = c.redis.Del(ctx, documentCacheKey).Err()
		return nil, false
	}
	return &doc, true
}

func (c *Cache) store(ctx context.Context, doc *domain.Document) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, documentCacheKey, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, documentCacheKey).Result()
}

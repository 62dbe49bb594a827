package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache holds catalog entities between reads. Entries go stale by TTL only.
type Cache interface {
	Get(ctx context.Context, kind domain.ItemType, id string) (*domain.CatalogEntity, error)
	Set(ctx context.Context, e *domain.CatalogEntity) error
	Delete(ctx context.Context, kind domain.ItemType, id string) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, domain.ItemType, string) (*domain.CatalogEntity, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Set(context.Context, *domain.CatalogEntity) error { return nil }

func (NopCache) Delete(context.Context, domain.ItemType, string) error { return nil }

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisCache) Get(ctx context.Context, kind domain.ItemType, id string) (*domain.CatalogEntity, error) {
	data, err := r.client.Get(ctx, cacheKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var e domain.CatalogEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal catalog entity failed: %w", err)
	}
	return &e, nil
}

// Set stores e for the base TTL plus up to a fifth of it again, so entries
// written together do not expire together.
func (r *RedisCache) Set(ctx context.Context, e *domain.CatalogEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal catalog entity failed: %w", err)
	}

	ttl := r.baseTTL + r.jitter()
	if err := r.client.Set(ctx, cacheKey(e.Kind, e.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, kind domain.ItemType, id string) error {
	if err := r.client.Del(ctx, cacheKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) jitter() time.Duration {
	spread := int64(r.baseTTL / 5)
	if spread <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(spread))
}

func cacheKey(kind domain.ItemType, id string) string {
	return fmt.Sprintf("catalog:%s:%s", kind, id)
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NasaVasa/pushwatch/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const listKey = "pushwatch:subscriptions:list"

// CachedLister serves the baseline listing from redis when a fresh copy
// exists. Only the baseline read goes through here; point reads and writes
// always hit the repository.
type CachedLister struct {
	rdb    redis.Cmdable
	next   domain.SubscriptionLister
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedLister(rdb redis.Cmdable, next domain.SubscriptionLister, ttl time.Duration, logger *zap.Logger) *CachedLister {
	return &CachedLister{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func (c *CachedLister) List(ctx context.Context) ([]domain.Subscription, error) {
	subs, err := c.load(ctx)
	if err == nil {
		return subs, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("subscription cache read failed", zap.Error(err))
	}

	subs, err = c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, subs); err != nil {
		c.logger.Warn("subscription cache write failed", zap.Error(err))
	}
	return subs, nil
}

// Invalidate drops the cached listing so the next tick sees fresh flags.
func (c *CachedLister) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, listKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate subscriptions: %w", err)
	}
	return nil
}

func (c *CachedLister) load(ctx context.Context) ([]domain.Subscription, error) {
	raw, err := c.rdb.Get(ctx, listKey).Bytes()
	if err != nil {
		return nil, err
	}
	var subs []domain.Subscription
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("redis: decode subscriptions: %w", err)
	}
	return subs, nil
}

func (c *CachedLister) store(ctx context.Context, subs []domain.Subscription) error {
	raw, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("redis: encode subscriptions: %w", err)
	}
	if err := c.rdb.Set(ctx, listKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: store subscriptions: %w", err)
	}
	return nil
}

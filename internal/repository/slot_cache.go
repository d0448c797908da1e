package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlotCache caches computed free-slot lists. One hash per entity and
// local date, with the service ID as the field, so a booking change on a
// date invalidates every service's slots for it with a single DEL.
type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) *RedisSlotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSlotCache{client: client, ttl: ttl}
}

func slotCacheKey(entityID int64, date string) string {
	return fmt.Sprintf("slots:%d:%s", entityID, date)
}

func (c *RedisSlotCache) GetDay(ctx context.Context, entityID, serviceID int64, date string) ([]string, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.HGet(ctx, slotCacheKey(entityID, date), strconv.FormatInt(serviceID, 10)).Result()
	if err != nil {
		return nil, false
	}
	var free []string
	if err := json.Unmarshal([]byte(raw), &free); err != nil {
		return nil, false
	}
	return free, true
}

func (c *RedisSlotCache) SetDay(ctx context.Context, entityID, serviceID int64, date string, free []string) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(free)
	if err != nil {
		return
	}
	key := slotCacheKey(entityID, date)
	if err := c.client.HSet(ctx, key, strconv.FormatInt(serviceID, 10), raw).Err(); err != nil {
		return
	}
	c.client.Expire(ctx, key, c.ttl)
}

func (c *RedisSlotCache) InvalidateDay(ctx context.Context, entityID int64, date string) {
	if c.client == nil {
		return
	}
	c.client.Del(ctx, slotCacheKey(entityID, date))
}

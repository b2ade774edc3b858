package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

const keyPrefix = "availability:held:"

// AvailabilityCache stores held-seat snapshots for the seat display path.
// The reservation path never reads it.
type AvailabilityCache interface {
	// GetHeldSeats returns the cached seats and whether the key was present.
	GetHeldSeats(ctx context.Context, key models.SeatKey) ([]int, bool, error)
	SetHeldSeats(ctx context.Context, key models.SeatKey, seats []int) error
	Invalidate(ctx context.Context, key models.SeatKey) error
}

// RedisAvailabilityCache is the Redis-backed AvailabilityCache
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisClient connects to the Redis instance at url and pings it
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisAvailabilityCache creates a cache whose entries expire after ttl
func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(key models.SeatKey) string {
	return keyPrefix + key.BusID + ":" + key.TravelDate
}

func (c *RedisAvailabilityCache) GetHeldSeats(ctx context.Context, key models.SeatKey) ([]int, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var seats []int
	if err := json.Unmarshal(val, &seats); err != nil {
		c.logger.WithError(err).WithField("key", cacheKey(key)).Warn("Discarding unreadable availability entry")
		return nil, false, nil
	}
	return seats, true, nil
}

func (c *RedisAvailabilityCache) SetHeldSeats(ctx context.Context, key models.SeatKey, seats []int) error {
	data, err := json.Marshal(seats)
	if err != nil {
		return fmt.Errorf("json encode failed: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, key models.SeatKey) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// NopAvailabilityCache never stores anything
type NopAvailabilityCache struct{}

func (NopAvailabilityCache) GetHeldSeats(ctx context.Context, key models.SeatKey) ([]int, bool, error) {
	return nil, false, nil
}

func (NopAvailabilityCache) SetHeldSeats(ctx context.Context, key models.SeatKey, seats []int) error {
	return nil
}

func (NopAvailabilityCache) Invalidate(ctx context.Context, key models.SeatKey) error {
	return nil
}

package ratelimit

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisStore wires a rate limiter store backed by Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
}

// PerMinute returns a limiter allowing n requests per minute. A non-positive n
// disables limiting.
func PerMinute(store limiter.Store, n int64) *limiter.Limiter {
	if store == nil || n <= 0 {
		return nil
	}
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: n})
}

package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Limiter enforces request rates against a shared limiter store. The window
// and threshold are supplied per call so one store can back several routes.
type Limiter struct {
	Store limiter.Store
}

// NewRedisStore builds the Redis-backed limiter store shared by all routes.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix,
	})
}

// Allow registers an event for the given key and reports whether it is within the limit.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	res, err := limiter.New(l.Store, rate).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

// ParseRate parses formatted limits such as "30-M" (thirty per minute).
func ParseRate(formatted string) (limiter.Rate, error) {
	return limiter.NewRateFromFormatted(formatted)
}

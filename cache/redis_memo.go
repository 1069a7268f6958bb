package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisMemo memoizes expensive or rarely-changing lookups (bucket-exists
// checks, calibration profiles) in Redis, with an in-flight singleflight
// group so concurrent workers don't stampede the same key.
type RedisMemo struct {
	client *redis.Client
	group  singleflight.Group
	ttl    time.Duration
}

func NewRedisMemo(client *redis.Client, ttl time.Duration) *RedisMemo {
	return &RedisMemo{client: client, ttl: ttl}
}

// GetOrCompute returns the cached string value for key, or computes it once
// (across concurrent callers) via fn and stores it with the configured TTL.
func (r *RedisMemo) GetOrCompute(ctx context.Context, key string, fn func() (string, error)) (string, error) {
	if v, err := r.client.Get(ctx, key).Result(); err == nil {
		return v, nil
	} else if err != redis.Nil {
		return "", err
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		computed, ferr := fn()
		if ferr != nil {
			return "", ferr
		}
		if setErr := r.client.Set(ctx, key, computed, r.ttl).Err(); setErr != nil {
			return computed, setErr
		}
		return computed, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate removes a memoized key, used when a bucket is recreated or a
// calibration profile is recomputed ahead of its TTL.
func (r *RedisMemo) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

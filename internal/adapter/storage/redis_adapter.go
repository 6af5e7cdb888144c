package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/pos-core/internal/core/domain"
)

const (
	lockKeyPrefix     = "lock:"
	lockRetryInterval = 10 * time.Millisecond
)

// Deletes the key only while it still holds our token, so an expired lock
// re-acquired by another worker is never released by us.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

// RedisLocker shares per-product and per-order locks between processes.
// Each lock expires after ttl so a crashed worker cannot hold it forever.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	newToken func() string
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		wait:     wait,
		interval: lockRetryInterval,
		newToken: uuid.NewString,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	token := r.newToken()
	deadline := time.Now().Add(r.wait)

	held := make([]string, 0, len(keys))
	for _, key := range dedupe(keys) {
		redisKey := lockKeyPrefix + key
		if err := r.lock(ctx, redisKey, token, deadline); err != nil {
			_ = r.release(context.WithoutCancel(ctx), held, token)
			return nil, err
		}
		held = append(held, redisKey)
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = r.release(context.WithoutCancel(ctx), held, token) })
	}, nil
}

func (r *RedisLocker) lock(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: lock %s busy", domain.ErrConcurrentModification, key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

func (r *RedisLocker) release(ctx context.Context, keys []string, token string) error {
	var errs error
	for i := len(keys) - 1; i >= 0; i-- {
		err := releaseLockScript.Run(ctx, r.client, []string{keys[i]}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			errs = errors.Join(errs, fmt.Errorf("release %s: %w", keys[i], err))
		}
	}
	return errs
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so a
// holder whose TTL expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes across every process sharing the Redis instance
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(cfg *config.Config) (*RedisLocker, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.IndexLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &RedisLocker{
		client: client,
		prefix: cfg.RedisPrefix,
		ttl:    ttl,
	}, nil
}

// NewLocker picks the Redis locker when a URL is configured and the local one otherwise
func NewLocker(cfg *config.Config) (Locker, error) {
	if cfg.RedisURL == "" {
		return NewLocalLocker(), nil
	}
	return NewRedisLocker(cfg)
}

func (r *RedisLocker) key(name string) string {
	return r.prefix + "lock:" + name
}

func (r *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	key := r.key(name)
	token := uuid.NewString()
	b := &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx error: %w", err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}

		wait := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-wait.C:
		}
	}
}

func (r *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		logger.Get().Error().
			Err(err).
			Str("key", key).
			Msg("Error releasing Redis lock")
	}
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

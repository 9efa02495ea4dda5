package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the redis backend stores history under.
const DefaultRedisKey = "vuload:history"

const (
	redisLockTTL   = 30 * time.Second
	redisLockRetry = 50 * time.Millisecond
)

// Deletes the lock only if it still holds our token.
var redisUnlock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisBackend stores the document as a single string value so several
// runners can share one history.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend returns a backend storing history under key.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read history from redis: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Write(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write history to redis: %w", err)
	}
	return nil
}

// Lock acquires a lease on key + ":lock" with SET NX, polling until ctx ends.
func (r *RedisBackend) Lock(ctx context.Context) (func() error, error) {
	lockKey := r.key + ":lock"
	token := ulid.Make().String()

	ticker := time.NewTicker(redisLockRetry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock history in redis: %w", err)
		}
		if ok {
			return func() error {
				return redisUnlock.Run(context.WithoutCancel(ctx), r.client, []string{lockKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock history in redis: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Quarantine renames an unreadable value to a timestamped key.
func (r *RedisBackend) Quarantine(ctx context.Context) (string, error) {
	dest := fmt.Sprintf("%s:corrupt:%d", r.key, time.Now().UnixNano())
	if err := r.client.Rename(ctx, r.key, dest).Err(); err != nil {
		return "", fmt.Errorf("quarantine history in redis: %w", err)
	}
	return dest, nil
}

package lease

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the TTL only if the stored value still matches the
// caller's token — otherwise another process has already taken over.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

// releaseScript deletes the key only if the stored value still matches the
// caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisStore implements Store against a single Redis keyspace, grounded on
// the github.com/redis/go-redis/v9 client idiom used across the example
// pack's non-teacher repos (connection config, *redis.Client, ctx-first
// calls).
type RedisStore struct {
	client *redis.Client
	renew  *redis.Script
	release *redis.Script
}

// NewRedisStore wraps an existing *redis.Client. The caller owns the
// client's lifecycle (Close).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		renew:   redis.NewScript(renewScript),
		release: redis.NewScript(releaseScript),
	}
}

func (s *RedisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (AcquireResult, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return AlreadyHeld, err
	}
	if !ok {
		slog.Debug("lease: already held", "key", key)
		return AlreadyHeld, nil
	}
	slog.Info("lease: acquired", "key", key, "ttl", ttl)
	return Acquired, nil
}

func (s *RedisStore) Renew(ctx context.Context, key, token string, ttl time.Duration) error {
	res, err := s.renew.Run(ctx, s.client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	res, err := s.release.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		slog.Debug("lease: release no-op, not held by this token", "key", key)
		return nil
	}
	slog.Info("lease: released", "key", key)
	return nil
}

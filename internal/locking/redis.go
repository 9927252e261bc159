package locking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ai-dev-platform/analytics/internal/logging"
)

// releaseScript deletes the key only when its current value equals the
// caller's token, so a holder whose lock already expired cannot delete a lock
// re-acquired by someone else.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// redisCommands is the subset of the go-redis client used by the manager.
type redisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisManager implements Manager on a Redis instance using SET NX PX for
// acquisition and a Lua compare-and-delete for release.
type RedisManager struct {
	rdb    redisCommands
	prefix string
	logger logging.Logger
}

// NewRedisManager returns a lock manager backed by the given Redis client.
// Keys are namespaced under prefix (e.g. "analytics:lock").
func NewRedisManager(rdb *redis.Client, prefix string, logger logging.Logger) *RedisManager {
	return newRedisManager(rdb, prefix, logger)
}

func newRedisManager(rdb redisCommands, prefix string, logger logging.Logger) *RedisManager {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &RedisManager{rdb: rdb, prefix: prefix, logger: logger}
}

// Acquire attempts an atomic "set if not exists, with expiry" using a fresh
// random token. Returns nil when the key is already held or on any backend
// error; contention is normal operation and is not logged as an error.
func (m *RedisManager) Acquire(ctx context.Context, key string, ttl time.Duration) *Lock {
	fullKey := m.keyFor(key)
	token := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		m.logger.Error("lock acquire failed", "key", fullKey, "error", err)
		return nil
	}
	if !ok {
		m.logger.Debug("lock held elsewhere", "key", fullKey)
		return nil
	}
	return &Lock{Key: fullKey, Token: token}
}

// Release deletes the lock if the stored token still matches. No-op for nil
// locks; backend errors are logged and swallowed.
func (m *RedisManager) Release(ctx context.Context, lock *Lock) {
	if lock == nil {
		return
	}
	deleted, err := m.rdb.Eval(ctx, releaseScript, []string{lock.Key}, lock.Token).Int64()
	if err != nil {
		m.logger.Error("lock release failed", "key", lock.Key, "error", err)
		return
	}
	if deleted == 0 {
		m.logger.Warn("lock already expired or re-acquired", "key", lock.Key)
	}
}

func (m *RedisManager) keyFor(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + ":" + key
}

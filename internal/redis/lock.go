package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("request lock not acquired")
)

// NewRedisRequestLocker creates a locker that serializes the approval
// cascade of a schedule change request with a per-request Redis key: the
// scan-then-batch sequence must not run twice concurrently for the same
// request. Slot bookings never take this lock; slot exclusivity is the
// ledger's job.
func NewRedisRequestLocker(client *redis.Client, ttl time.Duration) *RedisRequestLocker {
	return &RedisRequestLocker{
		client: client,
		ttl:    ttl,
	}
}

type RedisRequestLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func (l *RedisRequestLocker) WithRequestLock(ctx context.Context, requestID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:schedule-change:%s", requestID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire request lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisRequestLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release request lock: %w", err)
	}
	return nil
}

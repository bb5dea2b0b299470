// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"recurring-billing/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX lock with token-checked release.
type RedisLocker struct {
	cli     *redis.Client
	retries int
	backoff time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, retries: 5, backoff: 50 * time.Millisecond}
}

// TryLock returns domain.ErrLockNotAcquired when another holder keeps the key
// through every retry.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff): // wait before retrying
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLockNotAcquired, lastErr)
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

var luaExtend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

// Extend resets the TTL of key while token still owns it, and returns
// domain.ErrLockNotAcquired once it does not.
func (l *RedisLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	n, err := luaExtend.Run(ctx, l.cli, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLockNotAcquired
	}
	return nil
}

// BillingCycleLockKey guards the periodic billing trigger across replicas.
const BillingCycleLockKey = "lock:billing_cycle"

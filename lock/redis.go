package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// KeyPrefix namespaces lock keys in Redis
	KeyPrefix = "lock:"

	// DefaultTTL bounds how long a crashed holder can block a key
	DefaultTTL = 10 * time.Second

	// DefaultRetryDelay is the pause between acquisition attempts
	DefaultRetryDelay = 25 * time.Millisecond
)

// ErrNotAcquired is returned when the lock could not be taken before the context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrLockLost is returned alongside fn's error when the lock expired while fn was running.
var ErrLockLost = errors.New("lock expired before release")

// release deletes the key only if it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a single-instance Redis lock shared by every replica of the service.
type RedisLocker struct {
	rdb        *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRedisLocker returns a locker whose keys expire after ttl. A nil logger discards output.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retryDelay: DefaultRetryDelay, logger: logger}
}

// WithLock takes the Redis lock for key, runs fn and releases the lock.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := KeyPrefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, lockKey, token); err != nil {
		return err
	}

	fnErr := fn(ctx)

	// Release even if the caller's context is already done.
	released, err := release.Run(context.Background(), l.rdb, []string{lockKey}, token).Int()
	if err != nil {
		return errors.Join(fnErr, fmt.Errorf("failed to release lock %s: %w", lockKey, err))
	}
	if released == 0 {
		if fnErr != nil {
			return errors.Join(fnErr, ErrLockLost)
		}
		// fn has completed; its result stands.
		l.logger.Warn("lock expired before release", zap.String("key", lockKey), zap.Duration("ttl", l.ttl))
	}
	return fnErr
}

func (l *RedisLocker) acquire(ctx context.Context, lockKey, token string) error {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, lockKey, ctx.Err())
		case <-ticker.C:
		}
	}
}

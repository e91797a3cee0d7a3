package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the lease of a RedisLocker when none is configured.
const DefaultTTL = 5 * time.Minute

// ErrNotHeld is returned by a release when the lease expired and another
// holder took the key.
var ErrNotHeld = errors.New("lock was not held by this instance")

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extendScript renews the lease only if it still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// RedisLocker is a lease-based lock on a single Redis key. The lease is
// renewed at half its TTL until released.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker returns a locker on key. A non-positive ttl uses DefaultTTL.
func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, logger: logger}
}

// TryLock sets the key if absent. It does not wait for a current holder.
func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to try lock %s: %w", l.key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(token, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			err = l.unlock(ctx, token)
		})
		return err
	}
	return release, true, nil
}

func (l *RedisLocker) unlock(ctx context.Context, token string) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) renew(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.Warn("failed to renew lock", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if n == 0 {
				l.logger.Warn("lock lease lost", zap.String("key", l.key))
				return
			}
		}
	}
}

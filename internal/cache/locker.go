package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the lock only if this holder still owns it
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes pool mutations across ledger instances. The lock
// expires after ttl so a crashed holder cannot wedge a pool; correctness
// past expiry is left to the store's transaction isolation.
type RedisLocker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	retryMin time.Duration
	retryMax time.Duration
	logger   zerolog.Logger
}

// NewRedisLocker creates a locker over client
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		retryMin: 5 * time.Millisecond,
		retryMax: 200 * time.Millisecond,
		logger:   logger.With().Str("component", "RedisLocker").Logger(),
	}
}

// Lock blocks until key is held or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rkey := PoolLockKey(key)
	token := uuid.New().String()
	wait := l.retryMin

	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > l.retryMax {
			wait = l.retryMax
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, l.client, []string{rkey}, token).Err(); err != nil {
				l.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock, it will expire")
			}
		})
	}, nil
}

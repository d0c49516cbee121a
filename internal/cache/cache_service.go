// Package cache provides Redis-backed pool locks and read-model caching.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"asset-pool-ledger/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned while the Redis circuit is open
var ErrUnavailable = errors.New("redis unavailable (circuit breaker open)")

// ErrMiss is returned for keys that are not cached
var ErrMiss = errors.New("cache miss")

// Key prefixes for different cache types
const (
	PrefixAssetStats   = "ledger:asset:%s:stats"
	PrefixAssetHistory = "ledger:asset:%s:distributions"
	PrefixPoolLock     = "ledger:lock:%s"
)

// Default TTLs
const (
	DefaultStatsTTL = 30 * time.Second
	DefaultLockTTL  = 30 * time.Second
)

// CacheService wraps a Redis client with a failure circuit. After
// maxFailures consecutive errors every call returns ErrUnavailable until a
// background ping succeeds, so callers fall back to the store quickly
// instead of waiting on timeouts.
type CacheService struct {
	client *redis.Client
	config config.RedisConfig
	logger zerolog.Logger

	mu            sync.Mutex
	healthy       bool
	failures      int
	lastProbe     time.Time
	probing       bool
	maxFailures   int
	probeInterval time.Duration
}

// NewCacheService connects to Redis. An unreachable server is not an error:
// the service starts degraded and recovers on its own.
func NewCacheService(cfg config.RedisConfig, logger zerolog.Logger) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	cs := &CacheService{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		config:        cfg,
		logger:        logger.With().Str("component", "CacheService").Logger(),
		maxFailures:   3,
		probeInterval: 30 * time.Second,
		lastProbe:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn().Err(err).Str("address", cfg.Address).Msg("Initial Redis connection failed, running degraded")
		return cs, nil
	}

	cs.healthy = true
	cs.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return cs, nil
}

// do runs op through the failure circuit. redis.Nil counts as success.
func (cs *CacheService) do(op string, fn func() error) error {
	if !cs.allow() {
		return ErrUnavailable
	}

	err := fn()
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		cs.observe(nil)
		return err
	default:
		cs.observe(err)
		return fmt.Errorf("redis %s failed: %w", op, err)
	}
}

// allow reports whether calls may go to Redis, starting a recovery probe
// when the circuit has been open long enough.
func (cs *CacheService) allow() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.healthy {
		return true
	}
	if !cs.probing && time.Since(cs.lastProbe) >= cs.probeInterval {
		cs.probing = true
		cs.lastProbe = time.Now()
		go cs.probe()
	}
	return false
}

func (cs *CacheService) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := cs.client.Ping(ctx).Err()

	cs.mu.Lock()
	cs.probing = false
	cs.mu.Unlock()
	if err == nil {
		cs.observe(nil)
	}
}

func (cs *CacheService) observe(err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err == nil {
		if !cs.healthy {
			cs.logger.Info().Msg("Redis recovered")
		}
		cs.healthy = true
		cs.failures = 0
		return
	}

	cs.failures++
	if cs.healthy && cs.failures >= cs.maxFailures {
		cs.healthy = false
		cs.lastProbe = time.Now()
		cs.logger.Warn().Err(err).Int("failures", cs.failures).Msg("Redis marked unhealthy")
	}
}

// Get retrieves a value from cache. Missing keys return ErrMiss.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := cs.do("get", func() (err error) {
		result, err = cs.client.Get(ctx, key).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return result, err
}

// Set stores a value with TTL. Non-string values are stored as JSON.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return cs.do("set", func() error {
		return cs.client.Set(ctx, key, data, ttl).Err()
	})
}

// Delete removes keys from cache.
func (cs *CacheService) Delete(ctx context.Context, keys ...string) error {
	return cs.do("delete", func() error {
		return cs.client.Del(ctx, keys...).Err()
	})
}

// Ping checks Redis connectivity, bypassing the circuit.
func (cs *CacheService) Ping(ctx context.Context) error {
	err := cs.client.Ping(ctx).Err()
	cs.observe(err)
	return err
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	return cs.client.Close()
}

// GetClient returns the underlying Redis client for locks.
func (cs *CacheService) GetClient() *redis.Client {
	return cs.client
}

func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(data), nil
	}
}

// AssetStatsKey generates the cache key for a pool's contribution stats.
func AssetStatsKey(assetID string) string {
	return fmt.Sprintf(PrefixAssetStats, assetID)
}

// AssetHistoryKey generates the cache key for a pool's distribution history.
func AssetHistoryKey(assetID string) string {
	return fmt.Sprintf(PrefixAssetHistory, assetID)
}

// PoolLockKey generates the Redis key guarding a ledger lock.
func PoolLockKey(key string) string {
	return fmt.Sprintf(PrefixPoolLock, key)
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/events"
	"asset-pool-ledger/internal/ledger"
)

// KV is the subset of CacheService the query cache needs
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PoolQueries are the read models worth caching
type PoolQueries interface {
	AssetContributionStats(ctx context.Context, assetID string) (*ledger.ContributionStats, error)
	AssetDistributionHistory(ctx context.Context, assetID string) (*ledger.DistributionHistory, error)
}

// QueryCache is a read-through cache over pool read models. Any failure of
// the cache itself falls back to the source.
type QueryCache struct {
	kv     KV
	source PoolQueries
	ttl    time.Duration
	logger zerolog.Logger
}

// NewQueryCache creates a read-through cache
func NewQueryCache(kv KV, source PoolQueries, ttl time.Duration, logger zerolog.Logger) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &QueryCache{
		kv:     kv,
		source: source,
		ttl:    ttl,
		logger: logger.With().Str("component", "QueryCache").Logger(),
	}
}

// AssetContributionStats returns cached stats, loading them on a miss
func (q *QueryCache) AssetContributionStats(ctx context.Context, assetID string) (*ledger.ContributionStats, error) {
	var stats ledger.ContributionStats
	if q.load(ctx, AssetStatsKey(assetID), &stats) {
		return &stats, nil
	}
	fresh, err := q.source.AssetContributionStats(ctx, assetID)
	if err != nil {
		return nil, err
	}
	q.store(ctx, AssetStatsKey(assetID), fresh)
	return fresh, nil
}

// AssetDistributionHistory returns cached history, loading it on a miss
func (q *QueryCache) AssetDistributionHistory(ctx context.Context, assetID string) (*ledger.DistributionHistory, error) {
	var history ledger.DistributionHistory
	if q.load(ctx, AssetHistoryKey(assetID), &history) {
		return &history, nil
	}
	fresh, err := q.source.AssetDistributionHistory(ctx, assetID)
	if err != nil {
		return nil, err
	}
	q.store(ctx, AssetHistoryKey(assetID), fresh)
	return fresh, nil
}

// Invalidate drops every cached read model for a pool
func (q *QueryCache) Invalidate(ctx context.Context, assetID string) {
	if err := q.kv.Delete(ctx, AssetStatsKey(assetID), AssetHistoryKey(assetID)); err != nil {
		q.logger.Debug().Err(err).Str("asset_id", assetID).Msg("Cache invalidation failed")
	}
}

// Subscribe invalidates a pool's entries whenever the ledger changes it
func (q *QueryCache) Subscribe(bus *events.EventBus) {
	handler := func(e events.Event) {
		assetID, _ := e.Data["asset_id"].(string)
		if assetID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		q.Invalidate(ctx, assetID)
	}
	for _, t := range []events.EventType{
		events.EventContributionApplied,
		events.EventPoolFunded,
		events.EventPoolAvailable,
		events.EventProfitDistributed,
		events.EventAssetPurchased,
	} {
		bus.Subscribe(t, handler)
	}
}

func (q *QueryCache) load(ctx context.Context, key string, dest interface{}) bool {
	data, err := q.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			q.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed, using store")
		}
		return false
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		q.logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return false
	}
	return true
}

func (q *QueryCache) store(ctx context.Context, key string, value interface{}) {
	if err := q.kv.Set(ctx, key, value, q.ttl); err != nil {
		q.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

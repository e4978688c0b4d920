package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
)

// DefaultTariffTTL bounds how long a plan's tariffs may be served from cache
// if an invalidation is ever missed.
const DefaultTariffTTL = 10 * time.Minute

// Cache is the byte-level cache the tariff snapshot is stored in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// TariffCacheKey is the cache key holding all overrides of one plan.
func TariffCacheKey(planID string) string {
	return "coverage:tariffs:" + planID
}

// CachedSource serves plan tariffs from a cache in front of another source.
// A plan's overrides are cached as a single value, so a calculation always
// sees one plan's tariff set as a whole. Writers must call InvalidatePlan
// after changing a plan's overrides.
//
// A snapshot opened before an invalidation never writes its reads back for
// the invalidated plans. The bookkeeping is per process; the TTL bounds what
// another process can leave behind.
type CachedSource struct {
	inner  calculation.SnapshotSource
	cache  Cache
	ttl    time.Duration
	logger calculation.Logger

	mu          sync.Mutex
	epoch       uint64
	invalidated map[string]uint64
}

// NewCachedSource wraps inner. A zero ttl uses DefaultTariffTTL.
func NewCachedSource(inner calculation.SnapshotSource, cache Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTariffTTL
	}
	return &CachedSource{
		inner:       inner,
		cache:       cache,
		ttl:         ttl,
		logger:      calculation.NopLogger{},
		invalidated: make(map[string]uint64),
	}
}

// SetLogger sets the logger used for cache failures.
func (cs *CachedSource) SetLogger(logger calculation.Logger) {
	if logger == nil {
		logger = calculation.NopLogger{}
	}
	cs.logger = logger
}

// Snapshot implements calculation.SnapshotSource.
func (cs *CachedSource) Snapshot(ctx context.Context) (calculation.Snapshot, error) {
	// The epoch is taken before the inner snapshot opens, so any
	// invalidation the snapshot might not see counts as newer.
	opened := cs.currentEpoch()
	snap, err := cs.inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedSnapshot{Snapshot: snap, source: cs, opened: opened}, nil
}

func (cs *CachedSource) currentEpoch() uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.epoch
}

// invalidatedSince reports whether planID was invalidated after epoch.
func (cs *CachedSource) invalidatedSince(planID string, epoch uint64) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.invalidated[planID] > epoch
}

// InvalidatePlan drops the cached overrides of the given plans.
func (cs *CachedSource) InvalidatePlan(ctx context.Context, planIDs ...string) error {
	if len(planIDs) == 0 {
		return nil
	}
	// Recorded before the delete so a concurrent write-back either sees it
	// or lands before the delete.
	cs.mu.Lock()
	cs.epoch++
	for _, id := range planIDs {
		cs.invalidated[id] = cs.epoch
	}
	cs.mu.Unlock()

	keys := make([]string, 0, len(planIDs))
	for _, id := range planIDs {
		keys = append(keys, TariffCacheKey(id))
	}
	if err := cs.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate tariffs: %w", err)
	}
	return nil
}

type cachedSnapshot struct {
	calculation.Snapshot
	source *CachedSource
	opened uint64
}

// PlanTariffs reads through the cache. Cache failures fall back to the
// underlying snapshot; they never fail the calculation.
func (c *cachedSnapshot) PlanTariffs(ctx context.Context, planID string) ([]domain.ServiceTariffOverride, error) {
	key := TariffCacheKey(planID)

	data, found, err := c.source.cache.Get(ctx, key)
	if err != nil {
		c.source.logger.Warnf("tariff cache read for plan %s failed: %v", planID, err)
	} else if found {
		var overrides []domain.ServiceTariffOverride
		if err := json.Unmarshal(data, &overrides); err == nil {
			return overrides, nil
		}
		c.source.logger.Warnf("discarding unreadable cached tariffs for plan %s", planID)
	}

	overrides, err := c.Snapshot.PlanTariffs(ctx, planID)
	if err != nil {
		return nil, err
	}

	c.writeBack(ctx, planID, overrides)
	return overrides, nil
}

// writeBack caches overrides unless the plan was invalidated after this
// snapshot opened. An invalidation racing the write removes it again.
func (c *cachedSnapshot) writeBack(ctx context.Context, planID string, overrides []domain.ServiceTariffOverride) {
	if c.source.invalidatedSince(planID, c.opened) {
		c.source.logger.Debugf("not caching tariffs for plan %s read before its invalidation", planID)
		return
	}

	payload, err := json.Marshal(overrides)
	if err != nil {
		c.source.logger.Warnf("failed to encode tariffs for plan %s: %v", planID, err)
		return
	}
	key := TariffCacheKey(planID)
	if err := c.source.cache.Set(ctx, key, payload, c.source.ttl); err != nil {
		c.source.logger.Warnf("tariff cache write for plan %s failed: %v", planID, err)
		return
	}

	if c.source.invalidatedSince(planID, c.opened) {
		if err := c.source.cache.Delete(ctx, key); err != nil {
			c.source.logger.Warnf("failed to drop stale tariffs for plan %s: %v", planID, err)
		}
	}
}

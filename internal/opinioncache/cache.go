// Package opinioncache stores aggregated opinions with a TTL that is checked
// lazily on every read. Nothing sweeps expired records; they are ignored
// until a newer opinion for the same target replaces them.
package opinioncache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/metrics"
	"peertrust/internal/repository"

	"github.com/benbjohnson/clock"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = time.Hour

// Cache wraps the opinion operations of a TrustStore
type Cache struct {
	store repository.OpinionStore
	clock clock.Clock
	ttl   atomic.Int64
}

// New creates a cache over store. A nil clock means the wall clock.
func New(store repository.OpinionStore, clk clock.Clock, ttl time.Duration) (*Cache, error) {
	if clk == nil {
		clk = clock.New()
	}
	c := &Cache{store: store, clock: clk}
	if err := c.SetTTL(ttl); err != nil {
		return nil, err
	}
	return c, nil
}

// TTL returns the current time-to-live
func (c *Cache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// SetTTL changes the time-to-live. It applies to records already cached.
func (c *Cache) SetTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive, got %s", domain.ErrInvalidArgument, ttl)
	}
	c.ttl.Store(int64(ttl))
	return nil
}

// Get returns the cached opinion for target, or nil when it is absent or
// has expired
func (c *Cache) Get(ctx context.Context, target domain.Target) (*domain.NetworkOpinion, error) {
	op, err := c.store.GetCachedNetworkOpinion(ctx, target, c.TTL(), c.clock.Now())
	if err != nil {
		metrics.ObserveStoreError("get_cached_network_opinion", err)
		return nil, err
	}
	if op == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return op, nil
}

// Put caches op, stamped with the current time
func (c *Cache) Put(ctx context.Context, op domain.NetworkOpinion) error {
	if err := c.store.CacheNetworkOpinion(ctx, op, c.clock.Now()); err != nil {
		metrics.ObserveStoreError("cache_network_opinion", err)
		return err
	}
	return nil
}

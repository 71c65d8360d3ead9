/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package cache keeps resolved stream URLs in memory and makes sure that a
// given content key is resolved by at most one caller at a time.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/lucasduport/debrid-relay/pkg/metrics"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ResolveFunc produces the current URL of a content key.
type ResolveFunc func(ctx context.Context, key string) (string, error)

// Source tells where a URL returned by Fill came from.
type Source int

const (
	// Cached means the URL was found without taking the key's lock.
	Cached Source = iota
	// Coalesced means another caller stored the URL while this one waited
	// for the lock.
	Coalesced
	// Resolved means this caller resolved the URL itself.
	Resolved
)

func (s Source) String() string {
	switch s {
	case Cached:
		return "cached"
	case Coalesced:
		return "coalesced"
	default:
		return "resolved"
	}
}

// Options bounds the store and the lock registry.
type Options struct {
	Capacity uint64
	TTL      time.Duration
	LockTTL  time.Duration
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries    int    `json:"entries"`
	Locks      int    `json:"locks"`
	Capacity   uint64 `json:"capacity"`
	TTL        string `json:"ttl"`
	LockTTL    string `json:"lock_ttl"`
	Insertions uint64 `json:"insertions"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

// ResolutionCache maps content keys to resolved URLs. Entries expire a fixed
// TTL after insertion and the least recently used entry is evicted once the
// capacity is reached.
type ResolutionCache struct {
	opts  Options
	store *ttlcache.Cache[string, string]
	locks *ttlcache.Cache[string, *semaphore.Weighted]
}

// New builds an empty cache. Start must be called to reclaim expired items
// in the background.
func New(opts Options) *ResolutionCache {
	store := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](opts.TTL),
		ttlcache.WithCapacity[string, string](opts.Capacity),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	locks := ttlcache.New[string, *semaphore.Weighted](
		ttlcache.WithTTL[string, *semaphore.Weighted](opts.LockTTL),
	)

	store.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
		r := evictionReason(reason)
		metrics.CacheEvictions.WithLabelValues(r).Inc()
		utils.DebugLog("Cache entry for key %s evicted (%s)", item.Key(), r)
	})

	return &ResolutionCache{opts: opts, store: store, locks: locks}
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonExpired:
		return "expired"
	default:
		return "deleted"
	}
}

// Start runs the expiry loops of the store and the lock registry until Stop.
func (c *ResolutionCache) Start() {
	go c.store.Start()
	go c.locks.Start()
}

// Stop ends the expiry loops.
func (c *ResolutionCache) Stop() {
	c.store.Stop()
	c.locks.Stop()
}

// Lookup returns the unexpired URL stored for key. It never locks.
func (c *ResolutionCache) Lookup(key string) (string, bool) {
	url, ok := c.peek(key)
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	return url, ok
}

func (c *ResolutionCache) peek(key string) (string, bool) {
	item := c.store.Get(key)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Store inserts or overwrites the URL for key.
func (c *ResolutionCache) Store(key, url string) {
	c.store.Set(key, url, ttlcache.DefaultTTL)
}

// Invalidate removes key. Removing an absent key is a no-op.
func (c *ResolutionCache) Invalidate(key string) {
	c.store.Delete(key)
}

// Purge removes every entry.
func (c *ResolutionCache) Purge() {
	c.store.DeleteAll()
}

// Len returns the number of stored entries, expired ones not yet reclaimed included.
func (c *ResolutionCache) Len() int {
	return c.store.Len()
}

// Stats reports the cache counters.
func (c *ResolutionCache) Stats() Stats {
	m := c.store.Metrics()
	return Stats{
		Entries:    c.store.Len(),
		Locks:      c.locks.Len(),
		Capacity:   c.opts.Capacity,
		TTL:        c.opts.TTL.String(),
		LockTTL:    c.opts.LockTTL.String(),
		Insertions: m.Insertions,
		Hits:       m.Hits,
		Misses:     m.Misses,
		Evictions:  m.Evictions,
	}
}

// lockFor returns the resolution lock of key, creating it if needed. The
// registry reclaims locks LockTTL after their last use.
func (c *ResolutionCache) lockFor(key string) *semaphore.Weighted {
	item, _ := c.locks.GetOrSet(key, semaphore.NewWeighted(1))
	return item.Value()
}

// GetOrResolve returns the cached URL of key, or resolves it while holding
// the key's lock. Concurrent callers missing on the same key wait for the
// lock and then observe the value stored by the first one. A failed
// resolution is returned to its caller only and is not cached.
func (c *ResolutionCache) GetOrResolve(ctx context.Context, key string, resolve ResolveFunc) (string, error) {
	url, _, err := c.Fill(ctx, key, resolve)
	return url, err
}

// Fill is GetOrResolve, also reporting whether the URL was cached, stored by
// another caller during the wait, or resolved by this call.
func (c *ResolutionCache) Fill(ctx context.Context, key string, resolve ResolveFunc) (string, Source, error) {
	if url, ok := c.Lookup(key); ok {
		return url, Cached, nil
	}

	lock := c.lockFor(key)
	if err := lock.Acquire(ctx, 1); err != nil {
		return "", Resolved, errors.Wrapf(err, "waiting for resolution of %s", key)
	}
	defer lock.Release(1)

	if url, ok := c.peek(key); ok {
		metrics.CacheLookups.WithLabelValues("coalesced").Inc()
		return url, Coalesced, nil
	}

	url, err := resolve(ctx, key)
	if err != nil {
		return "", Resolved, err
	}
	c.Store(key, url)
	return url, Resolved, nil
}

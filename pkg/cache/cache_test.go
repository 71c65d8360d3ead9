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

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errUpstream = errors.New("upstream unavailable")

func newTestCache() *ResolutionCache {
	return New(Options{Capacity: 100, TTL: time.Hour, LockTTL: time.Minute})
}

func TestGetOrResolveHitShortCircuit(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	got, err := c.GetOrResolve(ctx, "abc123", func(context.Context, string) (string, error) {
		return "https://host/direct/xyz", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://host/direct/xyz", got)

	var calls int32
	got, err = c.GetOrResolve(ctx, "abc123", func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errUpstream
	})
	require.NoError(t, err)
	assert.Equal(t, "https://host/direct/xyz", got)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetOrResolveSingleFlight(t *testing.T) {
	c := newTestCache()
	const callers = 32

	var calls int32
	resolve := func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return "https://host/direct/" + key, nil
	}

	start := make(chan struct{})
	results := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			<-start
			url, err := c.GetOrResolve(context.Background(), "shared", resolve)
			results[i] = url
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, url := range results {
		assert.Equal(t, "https://host/direct/shared", url)
	}
}

func TestGetOrResolveDistinctKeysDoNotSerialize(t *testing.T) {
	c := newTestCache()
	blocked := make(chan struct{})
	defer close(blocked)

	go c.GetOrResolve(context.Background(), "slow", func(context.Context, string) (string, error) { // nolint: errcheck
		<-blocked
		return "https://host/slow", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.GetOrResolve(ctx, "fast", func(context.Context, string) (string, error) {
		return "https://host/fast", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://host/fast", got)
}

func TestFailureDoesNotPoisonKey(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_, err := c.GetOrResolve(ctx, "flaky", func(context.Context, string) (string, error) {
		return "", errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	_, ok := c.Lookup("flaky")
	assert.False(t, ok)

	// The lock must have been released: a short deadline is enough.
	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	got, err := c.GetOrResolve(short, "flaky", func(context.Context, string) (string, error) {
		return "https://host/ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://host/ok", got)
}

func TestWaitingCallerHonorsContext(t *testing.T) {
	c := newTestCache()
	holding := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrResolve(context.Background(), "busy", func(context.Context, string) (string, error) {
			close(holding)
			<-release
			return "https://host/busy", nil
		})
		done <- err
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetOrResolve(ctx, "busy", func(context.Context, string) (string, error) {
		t.Error("resolver must not run while the lock is held")
		return "", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	got, ok := c.Lookup("busy")
	assert.True(t, ok)
	assert.Equal(t, "https://host/busy", got)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	c := newTestCache()

	c.Store("k", "https://host/a")
	c.Invalidate("k")
	c.Invalidate("k")
	c.Invalidate("never-cached")

	_, ok := c.Lookup("k")
	assert.False(t, ok)
	_, ok = c.Lookup("never-cached")
	assert.False(t, ok)
}

func TestStoreOverwrites(t *testing.T) {
	c := newTestCache()
	c.Store("k", "https://host/old")
	c.Store("k", "https://host/new")

	got, ok := c.Lookup("k")
	assert.True(t, ok)
	assert.Equal(t, "https://host/new", got)
	assert.Equal(t, 1, c.Len())
}

func TestTTLBoundary(t *testing.T) {
	ttl := 300 * time.Millisecond
	c := New(Options{Capacity: 10, TTL: ttl, LockTTL: ttl})

	inserted := time.Now()
	c.Store("k", "https://host/a")

	time.Sleep(ttl/2 - time.Since(inserted))
	_, ok := c.Lookup("k")
	assert.True(t, ok, "entry must be present before the TTL")

	// Hits do not extend the TTL.
	time.Sleep(ttl + 100*time.Millisecond - time.Since(inserted))
	_, ok = c.Lookup("k")
	assert.False(t, ok, "entry must be absent after the TTL")
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(Options{Capacity: 2, TTL: time.Hour, LockTTL: time.Minute})

	c.Store("a", "https://host/a")
	c.Store("b", "https://host/b")
	_, ok := c.Lookup("a")
	require.True(t, ok)
	c.Store("c", "https://host/c")

	_, ok = c.Lookup("a")
	assert.True(t, ok)
	_, ok = c.Lookup("b")
	assert.False(t, ok)
	_, ok = c.Lookup("c")
	assert.True(t, ok)
}

func TestPurgeAndStats(t *testing.T) {
	c := newTestCache()
	c.Store("a", "https://host/a")
	c.Store("b", "https://host/b")
	c.Lookup("a")
	c.Lookup("missing")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, uint64(100), stats.Capacity)
	assert.Equal(t, uint64(2), stats.Insertions)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, "1h0m0s", stats.TTL)

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestStartStop(t *testing.T) {
	c := New(Options{Capacity: 10, TTL: 20 * time.Millisecond, LockTTL: 20 * time.Millisecond})
	c.Start()
	defer c.Stop()

	c.Store("k", "https://host/a")
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestFillReportsSource(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	resolve := func(context.Context, string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return "https://host/direct/k", nil
	}

	type result struct {
		url string
		src Source
		err error
	}
	first := make(chan result, 1)
	go func() {
		url, src, err := c.Fill(ctx, "k", resolve)
		first <- result{url, src, err}
	}()
	<-started

	second := make(chan result, 1)
	go func() {
		url, src, err := c.Fill(ctx, "k", resolve)
		second <- result{url, src, err}
	}()
	// The first caller missed twice, the second once before waiting on the lock.
	require.Eventually(t, func() bool { return c.Stats().Misses >= 3 }, time.Second, 5*time.Millisecond)
	close(release)

	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, Resolved, r.src)

	r = <-second
	require.NoError(t, r.err)
	assert.Equal(t, Coalesced, r.src)
	assert.Equal(t, "https://host/direct/k", r.url)

	url, src, err := c.Fill(ctx, "k", resolve)
	require.NoError(t, err)
	assert.Equal(t, Cached, src)
	assert.Equal(t, "https://host/direct/k", url)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

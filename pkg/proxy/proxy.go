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

package proxy

import (
	"context"
	"net/http"

	"github.com/lucasduport/debrid-relay/pkg/cache"
	"github.com/lucasduport/debrid-relay/pkg/metrics"
	"github.com/lucasduport/debrid-relay/pkg/relay"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
)

// ErrStillGone is returned when a freshly resolved URL is also reported gone.
var ErrStillGone = errors.New("content still not found after re-resolution")

// Resolver produces the current URL of a content key.
type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// Fetcher opens a resolved URL.
type Fetcher interface {
	Fetch(ctx context.Context, target, rangeHeader string) (*relay.Response, error)
}

// Outcome describes how a request was served.
type Outcome struct {
	// CacheHit is set when the first fetch used a cached URL.
	CacheHit bool
	// Retried is set when a cached URL was gone and the key was resolved again.
	Retried bool
}

// Proxy serves content keys through the resolution cache.
type Proxy struct {
	cache    *cache.ResolutionCache
	resolver Resolver
	fetcher  Fetcher
}

// New wires the cache, resolver and fetcher together.
func New(c *cache.ResolutionCache, r Resolver, f Fetcher) *Proxy {
	return &Proxy{cache: c, resolver: r, fetcher: f}
}

// Cache returns the resolution cache used by the proxy.
func (p *Proxy) Cache() *cache.ResolutionCache {
	return p.cache
}

// Open returns the upstream response for key. A URL reported gone is
// invalidated and the key is resolved again, at most once per call. A gone
// URL that this call resolved itself is terminal. Any other failure is
// returned as is.
func (p *Proxy) Open(ctx context.Context, key, rangeHeader string) (*relay.Response, Outcome, error) {
	var out Outcome

	if cached, ok := p.cache.Lookup(key); ok {
		out.CacheHit = true
		resp, err := p.fetcher.Fetch(ctx, cached, rangeHeader)
		if err == nil {
			return resp, out, nil
		}
		if !errors.Is(err, relay.ErrGone) {
			return nil, out, err
		}
		utils.WarnLog("Cached URL for key %s is gone, resolving again", key)
		p.cache.Invalidate(key)
		out.Retried = true
		metrics.Retries.Inc()
	}

	for {
		target, src, err := p.cache.Fill(ctx, key, p.resolver.Resolve)
		if err != nil {
			return nil, out, err
		}

		resp, err := p.fetcher.Fetch(ctx, target, rangeHeader)
		if err == nil {
			return resp, out, nil
		}
		if !errors.Is(err, relay.ErrGone) {
			return nil, out, err
		}
		p.cache.Invalidate(key)
		if src == cache.Resolved || out.Retried {
			return nil, out, errors.Wrapf(ErrStillGone, "key %s", key)
		}
		// Another request stored this URL after our first lookup.
		utils.WarnLog("%s URL for key %s is gone, resolving again", src, key)
		out.Retried = true
		metrics.Retries.Inc()
	}
}

// StatusFor maps an Open error to the status returned to the client.
func StatusFor(err error) int {
	if errors.Is(err, relay.ErrTimeout) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debrid_relay_cache_lookups_total",
		Help: "Resolution cache lookups by result (hit, miss, coalesced)",
	}, []string{"result"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debrid_relay_cache_evictions_total",
		Help: "Resolution cache entries removed, by reason",
	}, []string{"reason"})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debrid_relay_resolutions_total",
		Help: "Upstream resolve probes by status (success, failure)",
	}, []string{"status"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debrid_relay_resolve_duration_seconds",
		Help:    "Duration of upstream resolve probes",
		Buckets: prometheus.DefBuckets,
	})

	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debrid_relay_fetches_total",
		Help: "Content host fetches by outcome (ok, gone, timeout, bad_upstream)",
	}, []string{"outcome"})

	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debrid_relay_stale_retries_total",
		Help: "Requests that invalidated a stale URL and resolved it again",
	})

	BytesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debrid_relay_bytes_relayed_total",
		Help: "Body bytes copied from content hosts to clients",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debrid_relay_active_streams",
		Help: "Streams currently being relayed",
	})
)

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

package types

import "time"

// RelayRecord describes one relayed request, as stored in relay_history.
type RelayRecord struct {
	RequestID  string        // Request identifier, also sent as X-Request-ID
	ContentKey string        // Content key requested
	CacheHit   bool          // First fetch used a cached URL
	Retried    bool          // A stale URL was replaced during the request
	Status     int           // Status sent to the client
	Bytes      int64         // Body bytes relayed
	Duration   time.Duration // Time from request to end of stream
	ClientIP   string        // Caller address
	UserAgent  string        // Caller user agent
	StartedAt  time.Time     // When the request arrived
}

// StreamSession is a relay in progress.
type StreamSession struct {
	RequestID  string    `json:"request_id"`
	ContentKey string    `json:"content_key"`
	ClientIP   string    `json:"client_ip"`
	UserAgent  string    `json:"user_agent"`
	StartedAt  time.Time `json:"started_at"`
	BytesSent  int64     `json:"bytes_sent"`
}

// HistoryStats summarizes relay_history.
type HistoryStats struct {
	TotalRequests int64      `json:"total_requests"`
	Requests24h   int64      `json:"requests_24h"`
	Bytes24h      int64      `json:"bytes_24h"`
	CacheHitRatio float64    `json:"cache_hit_ratio"`
	Retries24h    int64      `json:"retries_24h"`
	Failures24h   int64      `json:"failures_24h"`
	TopKeys       []KeyCount `json:"top_keys"`
}

// KeyCount is a content key with its request count.
type KeyCount struct {
	ContentKey string `json:"content_key"`
	Requests   int64  `json:"requests"`
}

// APIResponse is a standardized API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

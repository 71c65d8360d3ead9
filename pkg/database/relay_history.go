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

package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/types"
	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// AddRelayHistory stores one relayed request.
func (m *DBManager) AddRelayHistory(rec types.RelayRecord) error {
	if !m.IsInitialized() {
		return fmt.Errorf("database not initialized")
	}
	utils.DebugLog("Database: Recording relay history - key: %s, status: %d", rec.ContentKey, rec.Status)

	_, err := m.db.Exec(`
        INSERT INTO relay_history
          (request_id, content_key, cache_hit, retried, status, bytes, duration_ms, client_ip, user_agent, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, rec.RequestID, rec.ContentKey, rec.CacheHit, rec.Retried, rec.Status, rec.Bytes,
		rec.Duration.Milliseconds(), rec.ClientIP, rec.UserAgent, rec.StartedAt)
	if err != nil {
		utils.ErrorLog("Database error adding relay history: %v", err)
		return err
	}
	return nil
}

// GetRelayHistoryStats summarizes the relay history.
func (m *DBManager) GetRelayHistoryStats() (*types.HistoryStats, error) {
	if !m.IsInitialized() {
		return nil, fmt.Errorf("database not initialized")
	}
	utils.DebugLog("Database: Getting relay history statistics")

	stats := &types.HistoryStats{TopKeys: []types.KeyCount{}}
	if err := m.db.QueryRow("SELECT COUNT(*) FROM relay_history").Scan(&stats.TotalRequests); err != nil {
		utils.ErrorLog("Database error counting relayed requests: %v", err)
		return nil, err
	}

	since := time.Now().Add(-24 * time.Hour)
	var hits int64
	if err := m.db.QueryRow(`
        SELECT COUNT(*),
               COALESCE(SUM(bytes), 0),
               COUNT(*) FILTER (WHERE cache_hit),
               COUNT(*) FILTER (WHERE retried),
               COUNT(*) FILTER (WHERE status >= 400)
        FROM relay_history WHERE started_at > $1
    `, since).Scan(&stats.Requests24h, &stats.Bytes24h, &hits, &stats.Retries24h, &stats.Failures24h); err != nil {
		utils.ErrorLog("Database error summarizing relay history: %v", err)
		return nil, err
	}
	if stats.Requests24h > 0 {
		stats.CacheHitRatio = float64(hits) / float64(stats.Requests24h)
	}

	rows, err := m.db.Query(`
        SELECT content_key, COUNT(*) AS requests FROM relay_history
        WHERE started_at > $1
        GROUP BY content_key ORDER BY requests DESC LIMIT 10
    `, since)
	if err != nil {
		utils.ErrorLog("Database error listing top keys: %v", err)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kc types.KeyCount
		if err := rows.Scan(&kc.ContentKey, &kc.Requests); err != nil {
			return nil, err
		}
		stats.TopKeys = append(stats.TopKeys, kc)
	}
	return stats, rows.Err()
}

// HistoryStore is where relay records end up.
type HistoryStore interface {
	AddRelayHistory(rec types.RelayRecord) error
}

// HistoryWriter stores relay records in the background so that a slow or
// failing database never delays a stream. Records are dropped when the
// queue is full.
type HistoryWriter struct {
	store   HistoryStore
	records chan types.RelayRecord
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewHistoryWriter starts a writer with a queue of size records.
func NewHistoryWriter(store HistoryStore, size int) *HistoryWriter {
	w := &HistoryWriter{store: store, records: make(chan types.RelayRecord, size)}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *HistoryWriter) run() {
	defer w.wg.Done()
	for rec := range w.records {
		if err := w.store.AddRelayHistory(rec); err != nil {
			utils.WarnLog("Relay history write failed for key %s: %v", rec.ContentKey, err)
		}
	}
}

// Record queues rec. It never blocks. A nil or closed writer ignores the
// record.
func (w *HistoryWriter) Record(rec types.RelayRecord) {
	if w == nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.records <- rec:
	default:
		utils.WarnLog("Relay history queue full, dropping record for key %s", rec.ContentKey)
	}
}

// Close flushes queued records and stops the writer.
func (w *HistoryWriter) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.records)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

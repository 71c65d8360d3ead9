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

package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/types"
	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// SessionManager tracks the relays in progress so that operators can list
// and stop them.
type SessionManager struct {
	streams    map[string]*Stream // request id -> stream
	streamLock sync.RWMutex
}

// Stream is the handle of one relay in progress.
type Stream struct {
	info   types.StreamSession
	sent   atomic.Int64
	cancel context.CancelFunc
}

// NewSessionManager creates an empty session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{streams: make(map[string]*Stream)}
}

// Begin registers a relay. The returned context is canceled by Disconnect
// or by End, whichever comes first.
func (sm *SessionManager) Begin(ctx context.Context, info types.StreamSession) (context.Context, *Stream) {
	ctx, cancel := context.WithCancel(ctx)
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	s := &Stream{info: info, cancel: cancel}

	sm.streamLock.Lock()
	sm.streams[info.RequestID] = s
	sm.streamLock.Unlock()
	return ctx, s
}

// End unregisters s and releases its context.
func (sm *SessionManager) End(s *Stream) {
	sm.streamLock.Lock()
	if cur, ok := sm.streams[s.info.RequestID]; ok && cur == s {
		delete(sm.streams, s.info.RequestID)
	}
	sm.streamLock.Unlock()
	s.cancel()
}

// Add counts n more bytes sent to the client.
func (s *Stream) Add(n int) {
	s.sent.Add(int64(n))
}

// Info returns a snapshot of the stream.
func (s *Stream) Info() types.StreamSession {
	info := s.info
	info.BytesSent = s.sent.Load()
	return info
}

// GetAllStreams returns all active relays, oldest first
func (sm *SessionManager) GetAllStreams() []types.StreamSession {
	sm.streamLock.RLock()
	streams := make([]types.StreamSession, 0, len(sm.streams))
	for _, s := range sm.streams {
		streams = append(streams, s.Info())
	}
	sm.streamLock.RUnlock()

	sort.Slice(streams, func(i, j int) bool {
		return streams[i].StartedAt.Before(streams[j].StartedAt)
	})
	return streams
}

// GetStreamInfo gets information about a specific relay
func (sm *SessionManager) GetStreamInfo(requestID string) (types.StreamSession, bool) {
	sm.streamLock.RLock()
	defer sm.streamLock.RUnlock()

	s, exists := sm.streams[requestID]
	if !exists {
		return types.StreamSession{}, false
	}
	return s.Info(), true
}

// Disconnect forcibly stops a relay. It reports whether the relay existed.
func (sm *SessionManager) Disconnect(requestID string) bool {
	sm.streamLock.RLock()
	s, exists := sm.streams[requestID]
	sm.streamLock.RUnlock()
	if !exists {
		return false
	}

	s.cancel()
	utils.InfoLog("Relay %s for key %s forcibly disconnected", requestID, s.info.ContentKey)
	return true
}

// Count returns the number of active relays.
func (sm *SessionManager) Count() int {
	sm.streamLock.RLock()
	defer sm.streamLock.RUnlock()
	return len(sm.streams)
}

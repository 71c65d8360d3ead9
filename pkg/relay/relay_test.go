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

package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchForwardsRange(t *testing.T) {
	var gotRange string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Range", "bytes 0-99/1000")
		w.Header().Set("Content-Type", "video/x-matroska")
		w.Header().Set("X-Custom", "kept")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, strings.Repeat("x", 100)) // nolint: errcheck
	})

	rl := New(utils.NewUpstreamTransport(), time.Second, 0)
	resp, err := rl.Fetch(context.Background(), srv.URL+"/direct/xyz", "bytes=0-99")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "bytes=0-99", gotRange)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 0-99/1000", resp.Header.Get("Content-Range"))
	assert.Equal(t, "video/x-matroska", resp.Header.Get("Content-Type"))
	assert.Equal(t, "kept", resp.Header.Get("X-Custom"))
	assert.Equal(t, "100", resp.Header.Get("Content-Length"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestFetchWithoutRange(t *testing.T) {
	hadRange := true
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, hadRange = r.Header["Range"]
		io.WriteString(w, "ok") // nolint: errcheck
	})

	rl := New(utils.NewUpstreamTransport(), time.Second, 0)
	resp, err := rl.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, hadRange)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found is gone",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrGone)
				assert.NotErrorIs(t, err, ErrBadUpstream)
			},
		},
		{
			name:   "server error is bad upstream",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrBadUpstream)
				assert.NotErrorIs(t, err, ErrGone)
				var statusErr *UpstreamStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
			},
		},
		{
			name:   "forbidden is bad upstream",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrBadUpstream)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			rl := New(utils.NewUpstreamTransport(), time.Second, 0)
			resp, err := rl.Fetch(context.Background(), srv.URL, "")
			assert.Nil(t, resp)
			tt.check(t, err)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	rl := New(utils.NewUpstreamTransport(), 50*time.Millisecond, 0)
	start := time.Now()
	_, err := rl.Fetch(context.Background(), srv.URL, "")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrGone)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimeoutDoesNotCutBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "first ") // nolint: errcheck
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		io.WriteString(w, "second") // nolint: errcheck
	})

	rl := New(utils.NewUpstreamTransport(), 50*time.Millisecond, 0)
	resp, err := rl.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "first second", string(data))
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/direct/secret-token"
	srv.Close()

	rl := New(utils.NewUpstreamTransport(), time.Second, 0)
	_, err := rl.Fetch(context.Background(), target, "")
	assert.ErrorIs(t, err, ErrBadUpstream)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestFetchClientCanceled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rl := New(utils.NewUpstreamTransport(), time.Second, 0)
	_, err := rl.Fetch(ctx, srv.URL, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestFetchBandwidthLimited(t *testing.T) {
	payload := strings.Repeat("y", 4096)
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, payload) // nolint: errcheck
	})

	rl := New(utils.NewUpstreamTransport(), time.Second, 1<<20)
	resp, err := rl.Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

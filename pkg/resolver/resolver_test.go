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

package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return New(base, "realdebrid", utils.NewUpstreamTransport(), 2*time.Second)
}

func TestResolveReturnsRedirectTarget(t *testing.T) {
	var gotMethod, gotPath string
	var followed int32
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/direct/xyz" {
			atomic.AddInt32(&followed, 1)
			return
		}
		gotMethod = req.Method
		gotPath = req.URL.EscapedPath()
		w.Header().Set("Location", "https://host/direct/xyz")
		w.WriteHeader(http.StatusFound)
	})

	got, err := r.Resolve(context.Background(), "token/abc123/null/0/file%20name.mkv")
	require.NoError(t, err)
	assert.Equal(t, "https://host/direct/xyz", got)
	assert.Equal(t, http.MethodHead, gotMethod)
	assert.Equal(t, "/resolve/realdebrid/token/abc123/null/0/file%20name.mkv", gotPath)
	assert.Zero(t, atomic.LoadInt32(&followed))
}

func TestResolveRelativeLocation(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Location", "/direct/rel")
		w.WriteHeader(http.StatusTemporaryRedirect)
	})

	got, err := r.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/direct/rel", u.Path)
	assert.True(t, u.IsAbs())
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "redirect without location",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusFound)
			},
		},
		{
			name: "ok status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", "https://host/direct/xyz")
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not a web url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", "ftp://host/file")
				w.WriteHeader(http.StatusFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, tt.handler)
			_, err := r.Resolve(context.Background(), "abc")
			assert.ErrorIs(t, err, ErrResolve)
		})
	}
}

func TestResolveTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	r := New(base, "realdebrid", utils.NewUpstreamTransport(), time.Second)
	_, err = r.Resolve(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrResolve)
	assert.NotContains(t, err.Error(), "/resolve/realdebrid/abc")
}

func TestProbeURL(t *testing.T) {
	base, err := url.Parse("https://torrentio.strem.fun")
	require.NoError(t, err)
	r := New(base, "realdebrid", http.DefaultTransport, time.Second)
	assert.Equal(t, "https://torrentio.strem.fun/resolve/realdebrid/a/b", r.ProbeURL("a/b"))
	assert.Equal(t, "https://torrentio.strem.fun/resolve/realdebrid/a/b", r.ProbeURL("/a/b"))
}

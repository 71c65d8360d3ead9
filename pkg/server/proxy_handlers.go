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

package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/metrics"
	"github.com/lucasduport/debrid-relay/pkg/proxy"
	"github.com/lucasduport/debrid-relay/pkg/relay"
	"github.com/lucasduport/debrid-relay/pkg/session"
	"github.com/lucasduport/debrid-relay/pkg/types"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
)

// statusClientClosed is recorded when a relay is canceled before a response.
const statusClientClosed = 499

var errUpstreamRead = errors.New("content host read failed")

// resolveStream relays /resolve/{provider}/{key} through the resolution cache.
func (c *Config) resolveStream(ctx *gin.Context) {
	if ctx.Param("provider") != c.Provider {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}

	prefix := "/resolve/" + c.Provider + "/"
	key, err := sanitizeKey(strings.TrimPrefix(ctx.Request.URL.EscapedPath(), prefix))
	if err != nil {
		utils.WarnLog("Rejected request path %s: %v", ctx.Request.URL.Path, err)
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}

	rec := types.RelayRecord{
		RequestID:  ctx.GetString(requestIDKey),
		ContentKey: key,
		ClientIP:   ctx.ClientIP(),
		UserAgent:  ctx.Request.UserAgent(),
		StartedAt:  time.Now(),
	}
	rctx, active := c.sessions.Begin(ctx.Request.Context(), types.StreamSession{
		RequestID:  rec.RequestID,
		ContentKey: key,
		ClientIP:   rec.ClientIP,
		UserAgent:  rec.UserAgent,
		StartedAt:  rec.StartedAt,
	})
	defer c.sessions.End(active)
	ctx.Request = ctx.Request.WithContext(rctx)

	finish := func(status int) {
		rec.Status = status
		rec.Duration = time.Since(rec.StartedAt)
		c.history.Record(rec)
	}

	resp, out, err := c.proxy.Open(ctx.Request.Context(), key, ctx.GetHeader("Range"))
	rec.CacheHit, rec.Retried = out.CacheHit, out.Retried
	if err != nil {
		if ctx.Request.Context().Err() != nil {
			utils.DebugLog("Relay for key %s canceled before the stream started", key)
			finish(statusClientClosed)
			ctx.Abort()
			return
		}
		status := proxy.StatusFor(err)
		utils.ErrorLog("Relay failed for key %s (status %d): %v", key, status, err)
		finish(status)
		ctx.AbortWithStatus(status)
		return
	}
	defer resp.Body.Close()

	utils.DebugLog("Relaying key %s (status %d, cache hit %t, retried %t)", key, resp.StatusCode, out.CacheHit, out.Retried)
	n, err := c.stream(ctx, resp, active)
	rec.Bytes = n
	finish(resp.StatusCode)

	if err != nil {
		if errors.Is(err, errUpstreamRead) {
			utils.ErrorLog("Stream fault for key %s after %d bytes: %v", key, n, err)
		} else {
			utils.DebugLog("Stream for key %s stopped after %d bytes: %v", key, n, err)
		}
		// Headers are already sent: drop the connection so the client sees a
		// truncated transfer instead of a complete one.
		panic(http.ErrAbortHandler)
	}
}

// stream copies the upstream status, headers and body to the client with
// flushes. It returns the number of body bytes written.
func (c *Config) stream(ctx *gin.Context, resp *relay.Response, active *session.Stream) (int64, error) {
	mergeHttpHeader(ctx.Writer.Header(), resp.Header)
	ctx.Status(resp.StatusCode)
	ctx.Writer.WriteHeaderNow()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	w := ctx.Writer
	buf := make([]byte, 64*1024)
	var written int64

	for {
		// Respect client cancellation
		select {
		case <-ctx.Request.Context().Done():
			return written, ctx.Request.Context().Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, errors.Wrap(werr, "client write")
			}
			written += int64(n)
			active.Add(n)
			metrics.BytesRelayed.Add(float64(n))
			w.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			if ctx.Request.Context().Err() != nil {
				return written, ctx.Request.Context().Err()
			}
			return written, errors.Wrapf(errUpstreamRead, "%v", rerr)
		}
	}
}

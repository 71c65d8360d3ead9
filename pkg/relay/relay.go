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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/ratelimit"
	"github.com/lucasduport/debrid-relay/pkg/metrics"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
)

var (
	// ErrGone means the content host no longer serves the URL. Callers treat
	// it as a stale resolution.
	ErrGone = errors.New("content host reports not found")
	// ErrTimeout means the content host did not answer within the relay timeout.
	ErrTimeout = errors.New("content host timed out")
	// ErrBadUpstream covers transport errors and non-success statuses other than 404.
	ErrBadUpstream = errors.New("content host request failed")
)

// UpstreamStatusError carries a non-success status other than 404.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("content host returned status %d", e.StatusCode)
}

// Is makes every UpstreamStatusError match ErrBadUpstream.
func (e *UpstreamStatusError) Is(target error) bool {
	return target == ErrBadUpstream
}

// Response is a successful upstream answer. Body is read lazily from the
// content host and must be closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Relay fetches resolved URLs on behalf of clients.
type Relay struct {
	client  *http.Client
	timeout time.Duration
	bucket  *ratelimit.Bucket
}

// New returns a Relay. timeout bounds the wait for response headers;
// bytesPerSecond caps the combined body throughput of all fetches, 0 disables it.
func New(transport http.RoundTripper, timeout time.Duration, bytesPerSecond int64) *Relay {
	r := &Relay{
		client:  &http.Client{Transport: transport},
		timeout: timeout,
	}
	if bytesPerSecond > 0 {
		r.bucket = ratelimit.NewBucketWithRate(float64(bytesPerSecond), bytesPerSecond)
		utils.InfoLog("Relay bandwidth capped at %d bytes/s", bytesPerSecond)
	}
	return r
}

// Fetch issues a GET for target, forwarding rangeHeader when not empty.
func (r *Relay) Fetch(ctx context.Context, target, rangeHeader string) (*Response, error) {
	resp, err := r.fetch(ctx, target, rangeHeader)
	metrics.Fetches.WithLabelValues(outcome(err)).Inc()
	return resp, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "bad_upstream"
	}
}

func (r *Relay) fetch(parent context.Context, target, rangeHeader string) (*Response, error) {
	ctx, cancel := context.WithCancelCause(parent)
	timer := time.AfterFunc(r.timeout, func() { cancel(ErrTimeout) })

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, errors.Wrapf(ErrBadUpstream, "building request: %v", err)
	}
	req.Header.Set("User-Agent", utils.GetUserAgent())
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.client.Do(req)
	if !timer.Stop() {
		// The timer fired while the response was arriving.
		if err == nil {
			resp.Body.Close()
		}
		cancel(nil)
		return nil, errors.Wrapf(ErrTimeout, "no response within %s", r.timeout)
	}
	if err != nil {
		cancel(nil)
		if parent.Err() != nil {
			return nil, errors.Wrap(parent.Err(), "client went away")
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, errors.Wrapf(ErrBadUpstream, "request to %s: %v", utils.RedactURL(target), err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		cancel(nil)
		return nil, ErrGone
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel(nil)
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if r.bucket != nil {
		reader = ratelimit.Reader(resp.Body, r.bucket)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &body{Reader: reader, closer: resp.Body, cancel: cancel},
	}, nil
}

// body releases the upstream connection and its context on Close.
type body struct {
	io.Reader
	closer io.Closer
	cancel context.CancelCauseFunc
}

func (b *body) Close() error {
	err := b.closer.Close()
	b.cancel(nil)
	return err
}

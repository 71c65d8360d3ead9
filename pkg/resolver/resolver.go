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
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lucasduport/debrid-relay/pkg/metrics"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
)

// ErrResolve is returned for every failed probe: transport error, non
// redirect status or a missing/unusable Location header.
var ErrResolve = errors.New("upstream resolution failed")

// Resolver asks the upstream addon for the current direct URL of a content key.
type Resolver struct {
	base     *url.URL
	provider string
	client   *http.Client
}

// New returns a Resolver probing {base}/resolve/{provider}/{key}. base must
// already be validated; it is the only host the resolver ever contacts.
func New(base *url.URL, provider string, transport http.RoundTripper, timeout time.Duration) *Resolver {
	return &Resolver{
		base:     base,
		provider: provider,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// ProbeURL returns the upstream URL probed for key.
func (r *Resolver) ProbeURL(key string) string {
	return fmt.Sprintf("%s/resolve/%s/%s",
		strings.TrimRight(r.base.String(), "/"), r.provider, strings.TrimLeft(key, "/"))
}

// Resolve issues a HEAD probe for key and returns the redirect target
// without following it. It does not touch any cache.
func (r *Resolver) Resolve(ctx context.Context, key string) (string, error) {
	start := time.Now()
	target, err := r.resolve(ctx, key)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Resolutions.WithLabelValues("failure").Inc()
		utils.WarnLog("Resolution failed for key %s: %v", key, err)
		return "", err
	}
	metrics.Resolutions.WithLabelValues("success").Inc()
	utils.DebugLog("Resolved key %s to %s", key, utils.RedactURL(target))
	return target, nil
}

func (r *Resolver) resolve(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.ProbeURL(key), nil)
	if err != nil {
		return "", errors.Wrapf(ErrResolve, "building probe: %v", err)
	}
	req.Header.Set("User-Agent", utils.GetUserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		// The error text embeds the probe URL, which carries the debrid token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", errors.Wrapf(ErrResolve, "probe: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return "", errors.Wrapf(ErrResolve, "probe returned status %d", resp.StatusCode)
	}

	location, err := resp.Location()
	if err != nil {
		return "", errors.Wrapf(ErrResolve, "redirect target: %v", err)
	}
	if location.Scheme != "http" && location.Scheme != "https" {
		return "", errors.Wrapf(ErrResolve, "redirect target has scheme %q", location.Scheme)
	}
	return location.String(), nil
}

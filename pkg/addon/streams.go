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

package addon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/lucasduport/debrid-relay/pkg/config"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	"github.com/pkg/errors"
)

// ErrUpstreamStreams is returned when the stream list cannot be fetched or parsed.
var ErrUpstreamStreams = errors.New("upstream stream list unavailable")

const maxStreamListSize = 8 << 20

// Stream is one entry of a stream list. Raw holds the full JSON object with
// its url already rewritten; the other fields are extracted for playlists.
type Stream struct {
	Raw   []byte
	URL   string
	Name  string
	Title string
}

// Client fetches stream lists from the configured upstream addon and points
// their debrid links at this server.
type Client struct {
	conf   *config.ProxyConfig
	client *http.Client
}

// NewClient returns a Client sharing transport with the rest of the relay.
func NewClient(conf *config.ProxyConfig, transport http.RoundTripper, timeout time.Duration) *Client {
	return &Client{
		conf:   conf,
		client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Streams returns the rewritten stream list of a piece of content.
func (c *Client) Streams(ctx context.Context, contentType, id string) ([]Stream, error) {
	body, err := c.fetch(ctx, contentType, id)
	if err != nil {
		return nil, err
	}
	return c.Rewrite(body)
}

func (c *Client) fetch(ctx context.Context, contentType, id string) ([]byte, error) {
	target := fmt.Sprintf("%s/stream/%s/%s.json",
		c.conf.TorrentioURL.String(), url.PathEscape(contentType), url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamStreams, "building request: %v", err)
	}
	req.Header.Set("User-Agent", utils.GetUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, errors.Wrapf(ErrUpstreamStreams, "fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstreamStreams, "status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStreamListSize))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamStreams, "read: %v", err)
	}
	return body, nil
}

// Rewrite parses an upstream stream list. Every url routed through the
// debrid provider is moved from the upstream host to this server, with the
// api key appended when authentication is on. All other fields are kept
// byte for byte.
func (c *Client) Rewrite(body []byte) ([]Stream, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.Wrap(ErrUpstreamStreams, "response is not a JSON object")
	}
	list, dataType, _, err := jsonparser.Get(body, "streams")
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError), err == nil && dataType == jsonparser.Null:
		return []Stream{}, nil
	case err != nil:
		return nil, errors.Wrapf(ErrUpstreamStreams, "parse: %v", err)
	case dataType != jsonparser.Array:
		return nil, errors.Wrapf(ErrUpstreamStreams, "streams is a %s", dataType)
	}

	streams := []Stream{}
	var itemErr error
	_, err = jsonparser.ArrayEach(list, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if itemErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			itemErr = errors.Wrapf(ErrUpstreamStreams, "stream entry is a %s", dataType)
			return
		}
		s, err := c.rewriteStream(value)
		if err != nil {
			itemErr = err
			return
		}
		streams = append(streams, s)
	})
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamStreams, "parse: %v", err)
	}
	if itemErr != nil {
		return nil, itemErr
	}
	return streams, nil
}

func (c *Client) rewriteStream(value []byte) (Stream, error) {
	raw := append([]byte(nil), value...)
	s := Stream{}
	s.Name, _ = jsonparser.GetString(raw, "name")
	s.Title, _ = jsonparser.GetString(raw, "title")

	link, err := jsonparser.GetString(raw, "url")
	if err != nil {
		// Entries without a url (magnet only) pass through untouched.
		s.Raw = raw
		return s, nil
	}

	if strings.Contains(link, "/"+c.conf.Provider+"/") {
		link = c.RewriteURL(link)
		quoted, err := quoteJSON(link)
		if err != nil {
			return Stream{}, errors.Wrap(err, "encoding stream url")
		}
		raw, err = jsonparser.Set(raw, quoted, "url")
		if err != nil {
			return Stream{}, errors.Wrapf(ErrUpstreamStreams, "rewrite: %v", err)
		}
	}
	s.Raw = raw
	s.URL = link
	return s, nil
}

func quoteJSON(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// RewriteURL points link at this server and appends the api key if needed.
func (c *Client) RewriteURL(link string) string {
	link = strings.ReplaceAll(link, c.conf.TorrentioBaseURL.String(), c.conf.ProxyServerURL.String())
	if c.conf.AuthEnabled() {
		sep := "?"
		if strings.Contains(link, "?") {
			sep = "&"
		}
		link += sep + "api_key=" + c.conf.APIKey.QueryEscape()
	}
	return link
}

// EncodeStreams renders streams as a Stremio stream response.
func EncodeStreams(streams []Stream) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"streams":[`)
	for i, s := range streams {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(s.Raw)
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}

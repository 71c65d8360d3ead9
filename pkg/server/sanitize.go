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
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	errEmptyKey    = errors.New("empty content key")
	errBadEncoding = errors.New("invalid percent-encoding in path")
	errTraversal   = errors.New("path traversal attempt")
	errDoubleSlash = errors.New("double slash in path")
)

// sanitizeKey validates a content key taken from a request path and returns
// it unchanged, in its original encoding. Checks apply to the decoded form
// so that encoded traversal sequences are caught too.
func sanitizeKey(raw string) (string, error) {
	if raw == "" {
		return "", errEmptyKey
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errBadEncoding
	}
	if strings.Contains(decoded, "..") {
		return "", errTraversal
	}
	if strings.Contains(decoded, "//") || strings.HasPrefix(decoded, "/") {
		return "", errDoubleSlash
	}
	return raw, nil
}

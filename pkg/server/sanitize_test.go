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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "plain", raw: "abc123"},
		{name: "nested", raw: "TOKEN/hash/null/0/Movie.mkv"},
		{name: "encoded is kept", raw: "TOKEN/My%20Movie.mkv"},
		{name: "empty", raw: "", wantErr: errEmptyKey},
		{name: "bad escape", raw: "abc%zz", wantErr: errBadEncoding},
		{name: "traversal", raw: "a/../b", wantErr: errTraversal},
		{name: "encoded traversal", raw: "a/%2E%2E/b", wantErr: errTraversal},
		{name: "double slash", raw: "a//b", wantErr: errDoubleSlash},
		{name: "encoded double slash", raw: "a/%2F/b", wantErr: errDoubleSlash},
		{name: "leading slash", raw: "/abc", wantErr: errDoubleSlash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeKey(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.raw, got)
		})
	}
}

func TestSecretEqual(t *testing.T) {
	assert.True(t, secretEqual("0123456789abcdef", "0123456789abcdef"))
	assert.False(t, secretEqual("0123456789abcdeF", "0123456789abcdef"))
	assert.False(t, secretEqual("0123", "0123456789abcdef"))
	assert.False(t, secretEqual("", "0123456789abcdef"))
}

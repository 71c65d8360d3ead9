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

package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetErrorDetailLevel(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected ErrorDetailLevel
	}{
		{name: "none", envValue: "none", expected: ErrorDetailNone},
		{name: "full", envValue: "full", expected: ErrorDetailFull},
		{name: "upper case full", envValue: "FULL", expected: ErrorDetailFull},
		{name: "simple", envValue: "simple", expected: ErrorDetailSimple},
		{name: "empty defaults to simple", envValue: "", expected: ErrorDetailSimple},
		{name: "invalid defaults to simple", envValue: "verbose", expected: ErrorDetailSimple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ERROR_DETAIL_LEVEL", tt.envValue)
			assert.Equal(t, tt.expected, getErrorDetailLevel())
		})
	}
}

func TestErrorWithLocation(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		assert.Nil(t, ErrorWithLocation(nil))
	})

	sentinel := errors.New("upstream unavailable")

	t.Run("simple level names the caller", func(t *testing.T) {
		t.Setenv("ERROR_DETAIL_LEVEL", "simple")
		got := ErrorWithLocation(sentinel)
		require.Error(t, got)
		assert.Contains(t, got.Error(), "error_utils_test.go")
		assert.Contains(t, got.Error(), "upstream unavailable")
		assert.ErrorIs(t, got, sentinel)
		assert.NotContains(t, fmt.Sprintf("%+v", got), "testing.tRunner")
	})

	t.Run("full level records a stack", func(t *testing.T) {
		t.Setenv("ERROR_DETAIL_LEVEL", "full")
		got := ErrorWithLocation(sentinel)
		require.Error(t, got)
		assert.ErrorIs(t, got, sentinel)
		assert.Contains(t, fmt.Sprintf("%+v", got), "testing.tRunner")
	})
}

func TestPrintErrorAndReturn(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		detailLevel string
		shouldPrint bool
	}{
		{name: "nil error", err: nil, detailLevel: "simple", shouldPrint: false},
		{name: "simple prints", err: errors.New("boom"), detailLevel: "simple", shouldPrint: true},
		{name: "full prints", err: errors.New("boom"), detailLevel: "full", shouldPrint: true},
		{name: "none is silent", err: errors.New("boom"), detailLevel: "none", shouldPrint: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ERROR_DETAIL_LEVEL", tt.detailLevel)

			oldStderr := os.Stderr
			r, w, err := os.Pipe()
			require.NoError(t, err)
			os.Stderr = w

			got := PrintErrorAndReturn(tt.err)

			w.Close()
			os.Stderr = oldStderr
			output, err := io.ReadAll(r)
			require.NoError(t, err)

			if tt.err == nil {
				assert.Nil(t, got)
				assert.Empty(t, output)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.shouldPrint, len(output) > 0)
		})
	}
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "[empty]", MaskString(""))
	assert.Equal(t, "s******", MaskString("secret"))
	assert.Equal(t, "abcd...mnop", MaskString("abcdefghijklmnop"))
}

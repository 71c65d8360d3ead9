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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// ErrorDetailLevel represents the level of error detail to display
type ErrorDetailLevel int

const (
	// ErrorDetailNone suppresses printing of errors
	ErrorDetailNone ErrorDetailLevel = iota
	// ErrorDetailSimple prefixes errors with file, line and function (default)
	ErrorDetailSimple
	// ErrorDetailFull additionally records a stack trace
	ErrorDetailFull
)

// getErrorDetailLevel returns the configured error detail level from environment
func getErrorDetailLevel() ErrorDetailLevel {
	switch strings.ToLower(os.Getenv("ERROR_DETAIL_LEVEL")) {
	case "none":
		return ErrorDetailNone
	case "full":
		return ErrorDetailFull
	default:
		return ErrorDetailSimple
	}
}

// locate wraps err with the location of the function skip frames up. The
// returned error still matches the original through errors.Is / errors.As.
func locate(err error, skip int) error {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return errors.WithMessage(err, "error occurred")
	}
	fnName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fnName = filepath.Base(fn.Name())
	}

	wrapped := errors.WithMessagef(err, "%s:%d [%s]", filepath.Base(file), line, fnName)
	if getErrorDetailLevel() == ErrorDetailFull {
		return errors.WithStack(wrapped)
	}
	return wrapped
}

// ErrorWithLocation wraps an error with location information based on detail level
func ErrorWithLocation(err error) error {
	if err == nil {
		return nil
	}
	return locate(err, 2)
}

// PrintErrorAndReturn prints the error to stderr (unless the detail level is
// none) and returns it wrapped with its location
func PrintErrorAndReturn(err error) error {
	if err == nil {
		return nil
	}

	wrapped := locate(err, 2)
	switch getErrorDetailLevel() {
	case ErrorDetailNone:
	case ErrorDetailFull:
		fmt.Fprintf(os.Stderr, "%+v\n", wrapped)
	default:
		fmt.Fprintln(os.Stderr, wrapped)
	}
	return wrapped
}

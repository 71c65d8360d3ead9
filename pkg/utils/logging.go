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

	log "github.com/sirupsen/logrus"
)

// Config holds the active logging configuration
var Config = struct {
	DebugLoggingEnabled bool
	LogLevel            log.Level
	LogFilePath         string
	logFile             *os.File
}{
	LogLevel: log.InfoLevel,
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	level := os.Getenv("LOG_LEVEL")
	if level == "" && os.Getenv("DEBUG_LOGGING") == "true" {
		level = "debug"
	}
	if err := SetupLogging(level, os.Getenv("LOG_FILE")); err != nil {
		log.Warnf("Logging setup from environment failed: %v", err)
	}
}

// SetupLogging applies a level name ("debug", "info", "warn", "error") and an
// optional log file. An empty level keeps the current one.
func SetupLogging(level, file string) error {
	if level != "" {
		lvl, err := log.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		Config.LogLevel = lvl
	}
	log.SetLevel(Config.LogLevel)
	Config.DebugLoggingEnabled = Config.LogLevel >= log.DebugLevel

	if file == "" || file == Config.LogFilePath {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	Close()
	Config.logFile = f
	Config.LogFilePath = file
	log.SetOutput(f)
	return nil
}

// Close closes any open log files
func Close() {
	if Config.logFile != nil {
		Config.logFile.Close()
		Config.logFile = nil
	}
}

// InfoLog logs an info message
func InfoLog(format string, v ...interface{}) {
	logWithCaller(log.InfoLevel, format, v...)
}

// WarnLog logs a warning message
func WarnLog(format string, v ...interface{}) {
	logWithCaller(log.WarnLevel, format, v...)
}

// DebugLog logs a debug message if debug logging is enabled
func DebugLog(format string, v ...interface{}) {
	logWithCaller(log.DebugLevel, format, v...)
}

// ErrorLog logs an error message
func ErrorLog(format string, v ...interface{}) {
	logWithCaller(log.ErrorLevel, format, v...)
}

// logWithCaller attaches the file:line of the helper's caller.
func logWithCaller(level log.Level, format string, v ...interface{}) {
	if !log.IsLevelEnabled(level) {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	log.WithField("caller", caller).Logf(level, format, v...)
}

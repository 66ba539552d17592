// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "simple"
)

// logCleanup closes the log file opened by the last init, if any.
var logCleanup = func() {}

// initLoggerFromCLI initializes the logger from CLI flags and environment variables.
// Priority: CLI flags > env vars > defaults
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	level := firstNonEmpty(cliLogLevel, os.Getenv(LogLevelEnvVar), "info")
	file := firstNonEmpty(cliLogFile, os.Getenv(LogFileEnvVar))
	format := firstNonEmpty(cliLogFormat, os.Getenv(LogFormatEnvVar), DefaultLogFormat)

	if err := initLogger(level, file, format); err != nil {
		return nil, err
	}
	return func() { logCleanup() }, nil
}

// applyConfigLogger re-initializes the logger from the config file's
// logger section for every setting not fixed by a flag or env var.
func applyConfigLogger(cli *CLI, cfg *config.LoggerConfig) error {
	if cfg == nil {
		return nil
	}
	level := firstNonEmpty(cli.LogLevel, os.Getenv(LogLevelEnvVar))
	file := firstNonEmpty(cli.LogFile, os.Getenv(LogFileEnvVar))
	format := firstNonEmpty(cli.LogFormat, os.Getenv(LogFormatEnvVar))
	if level != "" && file != "" && format != "" {
		return nil
	}

	return initLogger(
		firstNonEmpty(level, cfg.Level, "info"),
		firstNonEmpty(file, cfg.File),
		firstNonEmpty(format, cfg.Format, DefaultLogFormat),
	)
}

func initLogger(levelStr, file, format string) error {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	cleanup := func() {}
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = f, closeFn
	}

	prev := logCleanup
	logger.Init(level, output, format)
	logCleanup = cleanup
	prev()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

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

package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{"simple", "verbose", "json"}
)

// LoggerConfig is the logger section. CLI flags and the LOG_LEVEL,
// LOG_FILE and LOG_FORMAT environment variables take precedence over it.
type LoggerConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level,omitempty"`

	// File receives the logs instead of stderr when set.
	File string `yaml:"file,omitempty"`

	// Format is simple, verbose or json. Default: simple
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(c.Level)) {
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Format)) {
		return fmt.Errorf("invalid log format %q (valid: %s)", c.Format, strings.Join(logFormats, ", "))
	}
	return nil
}

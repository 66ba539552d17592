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

// Package config loads and validates postforge configuration.
//
// Configuration is read from a Provider (file, consul, etcd, zookeeper),
// parsed as YAML or JSON, expanded for ${VAR} / ${VAR:-default}
// references, decoded with mapstructure, defaulted and validated.
//
// Example:
//
//	image:
//	  backend: gemini
//	  api_key: ${GEMINI_API_KEY}
//	review:
//	  backend: gemini
//	deep_think:
//	  max_attempts: 5
//	storage:
//	  backend: sql
//	  blob_dir: ./assets
//	  database:
//	    driver: sqlite
//	    database: ./assets/index.db
package config

import (
	"fmt"

	"github.com/kadirpekel/postforge/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	// Version is informational.
	Version string `yaml:"version,omitempty"`

	Logger        LoggerConfig         `yaml:"logger,omitempty"`
	Image         ImageConfig          `yaml:"image,omitempty"`
	Review        ReviewConfig         `yaml:"review,omitempty"`
	DeepThink     DeepThinkConfig      `yaml:"deep_think,omitempty"`
	Router        RouterConfig         `yaml:"router,omitempty"`
	Storage       StorageConfig        `yaml:"storage,omitempty"`
	Server        ServerConfig         `yaml:"server,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Image.SetDefaults()
	c.Review.SetDefaults()
	c.DeepThink.SetDefaults()
	c.Router.SetDefaults()
	c.Storage.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"logger", c.Logger.Validate},
		{"image", c.Image.Validate},
		{"review", c.Review.Validate},
		{"deep_think", c.DeepThink.Validate},
		{"router", c.Router.Validate},
		{"storage", c.Storage.Validate},
		{"server", c.Server.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return nil
}

// Default returns a config built from defaults and environment keys only.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

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
	"path/filepath"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQL    = "sql"
)

// StorageConfig configures the asset store.
//
// Example:
//
//	storage:
//	  backend: sql
//	  blob_dir: ./assets
//	  database:
//	    driver: postgres
//	    host: localhost
//	    database: postforge
type StorageConfig struct {
	// Backend is memory or sql.
	// Default: sql
	Backend string `yaml:"backend,omitempty"`

	// BlobDir holds {name}_v{index}.png files for the sql backend.
	// Default: ./assets
	BlobDir string `yaml:"blob_dir,omitempty"`

	// Database configures the index. Defaults to sqlite inside BlobDir.
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// SetDefaults applies default values to StorageConfig.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageSQL
	}
	if c.BlobDir == "" {
		c.BlobDir = "./assets"
	}
	if c.Backend == StorageSQL {
		if c.Database == nil {
			c.Database = &DatabaseConfig{
				Driver:   "sqlite",
				Database: filepath.Join(c.BlobDir, "index.db"),
			}
		}
		c.Database.SetDefaults()
	}
}

// Validate checks StorageConfig.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageMemory:
		return nil
	case StorageSQL:
		if c.BlobDir == "" {
			return fmt.Errorf("blob_dir is required for the sql backend")
		}
		if c.Database == nil {
			return fmt.Errorf("database is required for the sql backend")
		}
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sql)", c.Backend)
	}
}

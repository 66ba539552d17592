// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DatabaseConfig locates the asset index. SQLite keeps the index next to
// the blob files; PostgreSQL and MySQL let several postforge instances
// share one index over a shared blob_dir.
type DatabaseConfig struct {
	// Driver is postgres, mysql or sqlite (sqlite3 is accepted).
	Driver string `yaml:"driver"`

	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Database is the database name, or the file path for SQLite.
	Database string `yaml:"database"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// SSLMode applies to PostgreSQL only. Default: disable
	SSLMode string `yaml:"ssl_mode,omitempty"`

	// Pool limits for server databases. Defaults: 25 open, 5 idle.
	MaxConns int `yaml:"max_conns,omitempty"`
	MaxIdle  int `yaml:"max_idle,omitempty"`
}

var defaultPorts = map[string]int{"postgres": 5432, "mysql": 3306}

// sqliteParams are go-sqlite3 connection options applied to every new
// connection. _txlock=immediate takes the write lock at BEGIN so writers
// from other processes queue on busy_timeout instead of failing mid
// transaction.
const sqliteParams = "_busy_timeout=10000&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate"

// SetDefaults fills ports, pool limits and the PostgreSQL SSL mode.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		c.Port = defaultPorts[c.Driver]
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite", "sqlite3":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}

	if c.Database == "" {
		return fmt.Errorf("database is required")
	}

	if c.Dialect() != "sqlite" && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}

	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be non-negative")
	}
	if c.MaxIdle < 0 {
		return fmt.Errorf("max_idle must be non-negative")
	}

	return nil
}

// DSN renders the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		parts := []string{
			"host=" + pqQuote(c.Host),
			fmt.Sprintf("port=%d", c.Port),
			"dbname=" + pqQuote(c.Database),
		}
		if c.Username != "" {
			parts = append(parts, "user="+pqQuote(c.Username))
		}
		if c.Password != "" {
			parts = append(parts, "password="+pqQuote(c.Password))
		}
		if c.SSLMode != "" {
			parts = append(parts, "sslmode="+c.SSLMode)
		}
		return strings.Join(parts, " ")
	case "mysql":
		// created_at is scanned into time.Time, which needs parseTime.
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN()
	case "sqlite", "sqlite3":
		sep := "?"
		if strings.Contains(c.Database, "?") {
			sep = "&"
		}
		return c.Database + sep + sqliteParams
	default:
		return ""
	}
}

// pqQuote quotes a key/value connection parameter for lib/pq when it
// contains spaces, quotes or backslashes.
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "'", "\\'")
	return "'" + v + "'"
}

// DriverName returns the driver name for sql.Open.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect returns the SQL dialect used for query building.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == "sqlite3" {
		return "sqlite"
	}
	return c.Driver
}

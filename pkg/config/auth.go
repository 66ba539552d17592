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
	"errors"
	"time"
)

const defaultJWKSRefresh = 15 * time.Minute

// AuthConfig turns on bearer JWT validation against a JWKS endpoint.
// Sessions are then owned by the token subject.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: https://idp.example.com/.well-known/jwks.json
//	    issuer: https://idp.example.com
//	    audience: postforge
//	    asset_roles: [marketing]
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval defaults to 15m and may not be below one minute.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// ExcludedPaths bypass validation. Defaults to /health and /metrics.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`

	// AssetRoles, when set, restricts the shared asset catalog under
	// /v1/assets to callers holding at least one of these roles.
	AssetRoles []string `yaml:"asset_roles,omitempty"`
}

// SetDefaults fills the refresh interval and excluded paths.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultJWKSRefresh
	}
	if c.ExcludedPaths == nil {
		c.ExcludedPaths = []string{"/health", "/metrics"}
	}
}

// Validate only checks an enabled config.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	required := []struct{ field, value string }{
		{"jwks_url", c.JWKSURL},
		{"issuer", c.Issuer},
		{"audience", c.Audience},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, errors.New(r.field+" is required when auth is enabled"))
		}
	}
	if c.RefreshInterval < time.Minute {
		errs = append(errs, errors.New("refresh_interval must be at least 1m"))
	}
	return errors.Join(errs...)
}

// IsEnabled is nil-safe.
func (c *AuthConfig) IsEnabled() bool {
	if c == nil || !c.Enabled {
		return false
	}
	return c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}

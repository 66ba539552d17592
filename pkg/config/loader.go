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
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/postforge/pkg/config/provider"
)

// Loader reads a Config from a provider and, when watched, re-reads it on
// every change signal.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange registers fn to receive every valid reloaded config.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader wraps p. The loader owns p and closes it in Close.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the document and returns the parsed, validated Config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg, _, err := l.load(ctx)
	return cfg, err
}

// load also reports whether the raw document differs from the last load.
func (l *Loader) load(ctx context.Context) (*Config, bool, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(data)
	l.mu.Lock()
	changed := sum != l.lastHash
	l.lastHash = sum
	l.mu.Unlock()
	return cfg, changed, nil
}

// Parse turns raw YAML or JSON into a validated Config.
func Parse(data []byte) (*Config, error) {
	rawMap, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{}
	if err := decodeConfig(expandEnvVars(rawMap), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Watch blocks until ctx is cancelled, reloading on every provider signal.
// A reload whose document is byte-identical to the previous one is not
// passed on. Invalid documents are logged and skipped, keeping the last
// good config in effect.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	if changes == nil {
		slog.Info("Config source cannot be watched", "type", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	slog.Info("Watching config for changes", "type", l.provider.Type())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	cfg, changed, err := l.load(ctx)
	switch {
	case err != nil:
		slog.Error("Ignoring invalid config change", "error", err)
	case !changed:
		slog.Debug("Config source signalled without content change")
	default:
		slog.Info("Configuration reloaded", "max_attempts", cfg.DeepThink.MaxAttempts)
		if l.onChange != nil {
			l.onChange(cfg)
		}
	}
}

// Close releases resources held by the loader.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// parseBytes accepts YAML or JSON. An empty document is an empty map.
func parseBytes(data []byte) (map[string]any, error) {
	result := map[string]any{}
	yamlErr := yaml.Unmarshal(data, &result)
	if yamlErr == nil {
		if result == nil {
			result = map[string]any{}
		}
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("not valid YAML (%v) or JSON (%w)", yamlErr, err)
	}
	return result, nil
}

func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	return nil
}

// LoadConfig creates a provider and loader and performs the first load.
// An empty path yields the zero-config defaults with a nil loader.
func LoadConfig(ctx context.Context, opts provider.ProviderConfig, loaderOpts ...LoaderOption) (*Config, *Loader, error) {
	if opts.Path == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("config validation failed: %w", err)
		}
		return cfg, nil, nil
	}

	p, err := provider.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	loader := NewLoader(p, loaderOpts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		p.Close()
		return nil, nil, err
	}

	return cfg, loader, nil
}

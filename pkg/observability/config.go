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

package observability

import (
	"fmt"
	"sort"
	"time"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config is the observability section of the postforge config.
//
//	observability:
//	  metrics:
//	    enabled: true
//	    model_buckets: [1, 5, 15, 30, 60]
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig selects where spans for runs and model calls are sent.
// Tracing is off unless Enabled is set.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is otlp (gRPC) or stdout.
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint of the OTLP collector, host:port.
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the fraction of root spans kept, in [0, 1].
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	ServiceName    string `yaml:"service_name,omitempty"`
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Insecure disables TLS towards the collector. Nil means true.
	Insecure *bool `yaml:"insecure,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the scrape path on the HTTP server.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace,omitempty"`

	// ModelBuckets are the histogram boundaries, in seconds, for image
	// generation, review and run durations. Model calls take seconds to
	// minutes, far outside the default HTTP-oriented buckets.
	ModelBuckets []float64 `yaml:"model_buckets,omitempty"`
}

// DefaultModelBuckets covers sub-second cache hits up to slow edits.
var DefaultModelBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300}

func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterOTLP
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be in [0, 1], got %v", c.SamplingRate)
	}
	switch c.Exporter {
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the otlp exporter")
		}
	case ExporterStdout:
	default:
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.Exporter)
	}
	return nil
}

// IsInsecure reports whether the collector connection skips TLS.
func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}

func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultServiceName
	}
	if len(c.ModelBuckets) == 0 {
		c.ModelBuckets = append([]float64(nil), DefaultModelBuckets...)
	}
}

func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Endpoint) == 0 || c.Endpoint[0] != '/' {
		return fmt.Errorf("endpoint must be an absolute path, got %q", c.Endpoint)
	}
	if !sort.Float64sAreSorted(c.ModelBuckets) {
		return fmt.Errorf("model_buckets must be in ascending order")
	}
	return nil
}

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

// Package observability wires OpenTelemetry tracing and Prometheus metrics.
package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type shutdowner interface {
	Shutdown(context.Context) error
}

// Manager holds the process-wide tracer provider and metrics.
type Manager struct {
	cfg Config

	mu      sync.RWMutex
	tp      trace.TracerProvider
	metrics *Metrics
}

// NewManager returns a Manager backed by no-op telemetry until Initialize
// succeeds.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, tp: noop.NewTracerProvider()}
}

// Initialize builds the tracer provider and the metrics registry.
func (m *Manager) Initialize(ctx context.Context) error {
	tp, err := InitGlobalTracer(ctx, m.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	metrics, err := InitMetrics(ctx, m.cfg.Metrics)
	if err != nil {
		if s, ok := tp.(shutdowner); ok {
			_ = s.Shutdown(ctx)
		}
		return fmt.Errorf("metrics: %w", err)
	}

	m.mu.Lock()
	m.tp, m.metrics = tp, metrics
	m.mu.Unlock()
	return nil
}

// Tracer returns a tracer from the managed provider.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tp.Tracer(name)
}

// Metrics is nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsPath is the scrape path mounted by the HTTP server.
func (m *Manager) MetricsPath() string {
	return m.cfg.Metrics.Endpoint
}

// Shutdown flushes spans and metric readers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if s, ok := m.tp.(shutdowner); ok {
		errs = append(errs, s.Shutdown(ctx))
	}
	errs = append(errs, m.metrics.Shutdown(ctx))
	return errors.Join(errs...)
}

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
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded by the generation pipeline.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	generationDuration metric.Float64Histogram
	generationsTotal   metric.Int64Counter
	generationErrors   metric.Int64Counter

	reviewDuration metric.Float64Histogram
	reviewsTotal   metric.Int64Counter
	reviewErrors   metric.Int64Counter

	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	attemptsPerRun metric.Int64Histogram

	versionsTotal metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// InitMetrics creates the Prometheus-backed meter provider and instruments.
// Returns nil when metrics are disabled.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.ModelBuckets) == 0 {
		cfg.ModelBuckets = DefaultModelBuckets
	}

	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("github.com/kadirpekel/postforge")

	m := &Metrics{
		provider: meterProvider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	if m.generationDuration, err = meter.Float64Histogram(
		"generation_duration",
		metric.WithDescription("Image generation call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.ModelBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation duration histogram: %w", err)
	}
	if m.generationsTotal, err = meter.Int64Counter(
		"generations",
		metric.WithDescription("Total image generation calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generations counter: %w", err)
	}
	if m.generationErrors, err = meter.Int64Counter(
		"generation_errors",
		metric.WithDescription("Total failed image generation calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation errors counter: %w", err)
	}

	if m.reviewDuration, err = meter.Float64Histogram(
		"review_duration",
		metric.WithDescription("Review call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.ModelBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create review duration histogram: %w", err)
	}
	if m.reviewsTotal, err = meter.Int64Counter(
		"reviews",
		metric.WithDescription("Total review calls by verdict"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reviews counter: %w", err)
	}
	if m.reviewErrors, err = meter.Int64Counter(
		"review_errors",
		metric.WithDescription("Total failed review calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create review errors counter: %w", err)
	}

	if m.runsTotal, err = meter.Int64Counter(
		"deepthink_runs",
		metric.WithDescription("Total deep-think runs by stop reason"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram(
		"deepthink_run_duration",
		metric.WithDescription("Deep-think run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.ModelBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}
	if m.attemptsPerRun, err = meter.Int64Histogram(
		"deepthink_attempts",
		metric.WithDescription("Attempts per deep-think run"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 6, 8, 10),
	); err != nil {
		return nil, fmt.Errorf("failed to create attempts histogram: %w", err)
	}

	if m.versionsTotal, err = meter.Int64Counter(
		"asset_versions",
		metric.WithDescription("Total asset versions created by source"),
	); err != nil {
		return nil, fmt.Errorf("failed to create versions counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"http_request_duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter(
		"http_requests",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return m, nil
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.handler == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// RecordGeneration records one image generation call.
func (m *Metrics) RecordGeneration(ctx context.Context, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrBackend, backend))
	m.generationDuration.Record(ctx, duration.Seconds(), attrs)
	m.generationsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.generationErrors.Add(ctx, 1, attrs)
	}
}

// RecordReview records one review call.
func (m *Metrics) RecordReview(ctx context.Context, backend string, duration time.Duration, accepted bool, err error) {
	if m == nil {
		return
	}

	backendAttr := attribute.String(AttrBackend, backend)
	m.reviewDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(backendAttr))
	if err != nil {
		m.reviewErrors.Add(ctx, 1, metric.WithAttributes(backendAttr))
		return
	}
	m.reviewsTotal.Add(ctx, 1, metric.WithAttributes(backendAttr, attribute.Bool(AttrAccepted, accepted)))
}

// RecordRun records a finished deep-think run.
func (m *Metrics) RecordRun(ctx context.Context, stopReason string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(AttrStopReason, stopReason))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.attemptsPerRun.Record(ctx, int64(attempts), attrs)
}

// RecordVersion records a stored asset version.
func (m *Metrics) RecordVersion(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.versionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

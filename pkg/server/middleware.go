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

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/postforge/pkg/observability"
)

// instrument wraps every request in a span, records the request histogram
// by route pattern and logs a debug line once the handler returns.
func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	tracer := observability.GetTracer("postforge.http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		ctx, span := tracer.Start(r.Context(), observability.SpanHTTPRequest,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()

		// The chi wrapper keeps http.Flusher for the SSE endpoint.
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(began)
		route := matchedRoute(r)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int(observability.AttrStatusCode, status),
			attribute.Int("http.response_size", ww.BytesWritten()),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		s.metrics.RecordHTTPRequest(ctx, r.Method, route, status, elapsed)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	})
}

// matchedRoute prefers the chi pattern (/v1/assets/{name}/versions) so
// metric labels stay bounded.
func matchedRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

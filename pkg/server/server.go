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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/postforge/pkg/auth"
	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/observability"
	"github.com/kadirpekel/postforge/pkg/runner"
	"github.com/kadirpekel/postforge/pkg/session"
)

// HTTPServer serves the postforge API.
type HTTPServer struct {
	cfg      *config.ServerConfig
	runner   *runner.Runner
	sessions session.Manager

	validator   auth.TokenValidator
	excluded    []string
	metrics     *observability.Metrics
	metricsPath string
	logger      *slog.Logger

	server *http.Server
}

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithAuthValidator enables bearer token authentication.
func WithAuthValidator(v auth.TokenValidator, excludedPaths ...string) HTTPServerOption {
	return func(s *HTTPServer) {
		s.validator = v
		s.excluded = excludedPaths
	}
}

// WithMetrics records HTTP metrics and serves the scrape endpoint at path.
func WithMetrics(m *observability.Metrics, path string) HTTPServerOption {
	return func(s *HTTPServer) {
		s.metrics = m
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPServerOption {
	return func(s *HTTPServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPServer creates a server. Call Start to listen.
func NewHTTPServer(cfg *config.ServerConfig, r *runner.Runner, sessions session.Manager, opts ...HTTPServerOption) *HTTPServer {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	cfg.SetDefaults()
	if sessions == nil {
		sessions = session.InMemoryManager()
	}

	s := &HTTPServer{
		cfg:         cfg,
		runner:      r,
		sessions:    sessions,
		metricsPath: "/metrics",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler. Auth applies under /v1 only.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.validator != nil {
			r.Use(auth.Middleware(s.validator, auth.WithExcludedPaths(s.excluded...)))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/messages", s.handleMessage)
				r.Post("/references", s.handleUploadReference)
			})
		})

		r.Route("/assets", func(r chi.Router) {
			if roles := s.assetRoles(); len(roles) > 0 {
				r.Use(auth.RequireRole(roles...))
			}
			r.Get("/", s.handleListAssets)
			r.Get("/{name}/versions", s.handleListVersions)
			r.Get("/{name}/versions/{version}", s.handleGetVersion)
		})
	})

	return r
}

func (s *HTTPServer) assetRoles() []string {
	if s.validator == nil || s.cfg.Auth == nil {
		return nil
	}
	return s.cfg.Auth.AssetRoles
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("HTTP server starting", "address", ln.Addr().String(), "auth", s.validator != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the configured listen address.
func (s *HTTPServer) Address() string {
	return s.cfg.Address()
}

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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/postforge/pkg/auth"
	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/mcpserver"
	"github.com/kadirpekel/postforge/pkg/server"
	"github.com/kadirpekel/postforge/pkg/session"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Host  string `help:"Host to bind (overrides server.host)."`
	Port  int    `help:"Port to listen on (overrides server.port)."`
	Watch bool   `help:"Watch the config source and apply deep_think.max_attempts changes live."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var a *app
	cfg, loader, err := cli.loadConfig(ctx, config.WithOnChange(func(next *config.Config) {
		if a != nil {
			a.reload(next)
		}
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	a, err = newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts := []server.HTTPServerOption{
		server.WithMetrics(a.obs.Metrics(), a.obs.MetricsPath()),
		server.WithLogger(slog.Default()),
	}
	validator, err := auth.NewValidatorFromConfig(cfg.Server.Auth)
	if err != nil {
		return err
	}
	if validator != nil {
		defer validator.Close()
		opts = append(opts, server.WithAuthValidator(validator, cfg.Server.Auth.ExcludedPaths...))
	}

	srv := server.NewHTTPServer(&cfg.Server, a.runner, session.InMemoryManager(), opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch {
		if loader == nil {
			slog.Warn("--watch needs a config source; ignoring")
		} else {
			g.Go(func() error {
				if err := loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("config watch failed: %w", err)
				}
				return nil
			})
		}
	}

	out := cli.stdout()
	fmt.Fprintln(out)
	printTitle(out, "postforge server ready")
	printKV(out, "API", "http://"+srv.Address()+"/v1")
	printKV(out, "Health", "http://"+srv.Address()+"/health")
	if a.obs.Metrics() != nil {
		printKV(out, "Metrics", "http://"+srv.Address()+a.obs.MetricsPath())
	}
	printKV(out, "Auth", enabledString(validator != nil))
	printKV(out, "Storage", cfg.Storage.Backend)
	fmt.Fprintln(out)

	return g.Wait()
}

func enabledString(b bool) string {
	if b {
		return "enabled"
	}
	return styleMuted.Render("disabled")
}

// MCPCmd serves the MCP tools over stdio.
type MCPCmd struct{}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// stdout carries the protocol; logs must stay on stderr or a file.
	srv := mcpserver.New(a.runner, "postforge", version(), slog.Default())
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

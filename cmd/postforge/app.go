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

	"github.com/kadirpekel/postforge/pkg/asset"
	"github.com/kadirpekel/postforge/pkg/config"
	"github.com/kadirpekel/postforge/pkg/deepthink"
	"github.com/kadirpekel/postforge/pkg/imagegen"
	"github.com/kadirpekel/postforge/pkg/observability"
	"github.com/kadirpekel/postforge/pkg/review"
	"github.com/kadirpekel/postforge/pkg/router"
	"github.com/kadirpekel/postforge/pkg/runner"
)

// app holds the process-wide components built from config.
type app struct {
	cfg        *config.Config
	obs        *observability.Manager
	pool       *config.DBPool
	store      asset.Store
	controller *deepthink.Controller
	runner     *runner.Runner
}

// openStore builds only the asset store. Asset commands need nothing else.
func openStore(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, pool: config.NewDBPool()}

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		slog.Warn("Using in-memory asset storage; assets are lost on exit")
		a.store = asset.NewMemoryStore()
	case config.StorageSQL:
		db, err := a.pool.Get(ctx, cfg.Storage.Database)
		if err != nil {
			a.pool.Close()
			return nil, fmt.Errorf("failed to open asset index: %w", err)
		}
		blobs, err := asset.NewBlobDir(cfg.Storage.BlobDir)
		if err != nil {
			a.pool.Close()
			return nil, err
		}
		store, err := asset.NewSQLStore(db, cfg.Storage.Database.Dialect(), blobs)
		if err != nil {
			a.pool.Close()
			return nil, fmt.Errorf("failed to create asset store: %w", err)
		}
		a.store = store
	default:
		a.pool.Close()
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}

	return a, nil
}

// newApp builds the full pipeline: observability, store, adapters,
// controller and runner.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	a, err := openStore(ctx, cfg)
	if err != nil {
		obs.Shutdown(context.Background())
		return nil, err
	}
	a.obs = obs
	metrics := obs.Metrics()

	if err := a.buildPipeline(metrics); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) buildPipeline(metrics *observability.Metrics) error {
	gen, err := imagegen.New(&a.cfg.Image, metrics)
	if err != nil {
		return err
	}
	reviewer, err := review.New(&a.cfg.Review, metrics)
	if err != nil {
		return err
	}

	a.controller, err = deepthink.New(a.store, gen, reviewer,
		deepthink.WithMaxAttempts(a.cfg.DeepThink.MaxAttempts),
		deepthink.WithRubric(review.RubricFromConfig(&a.cfg.Review)),
		deepthink.WithProgressJudge(deepthink.NewProgressJudge(a.cfg.DeepThink.SimilarityCutoff, a.cfg.DeepThink.ScoreEpsilon)),
		deepthink.WithMetrics(metrics),
		deepthink.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to create deep think controller: %w", err)
	}

	a.runner, err = runner.New(runner.Config{
		Store:      a.store,
		Generator:  gen,
		Controller: a.controller,
		Router:     router.New(a.cfg.Router.TriggerPhrase),
		Metrics:    metrics,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	slog.Info("Pipeline ready",
		"image_backend", a.cfg.Image.Backend,
		"review_backend", a.cfg.Review.Backend,
		"storage", a.cfg.Storage.Backend,
		"max_attempts", a.cfg.DeepThink.MaxAttempts)
	return nil
}

// reload applies the settings that can change without a restart.
func (a *app) reload(cfg *config.Config) {
	if a.controller == nil {
		return
	}
	if cfg.DeepThink.MaxAttempts != a.controller.MaxAttempts() {
		slog.Info("Updating deep think attempt budget", "from", a.controller.MaxAttempts(), "to", cfg.DeepThink.MaxAttempts)
		a.controller.SetMaxAttempts(cfg.DeepThink.MaxAttempts)
	}
}

// Close releases the store, database handles and telemetry exporters.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.pool.Close())
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

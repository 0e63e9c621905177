// Copyright 2025 Tom Barlow
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

// Command skeind is the orchestration engine daemon: it wires storage,
// encryption, the event bus, metrics, the task runner, the lifecycle
// controller, the cron scheduler, and (optionally) leader election
// together, then blocks until told to shut down. It exposes no transport
// of its own; driving workflows is left to an embedding caller (a future
// HTTP/gRPC layer, a test harness) that imports these same packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skeinhq/skein/internal/config"
	"github.com/skeinhq/skein/internal/cryptoutil"
	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/eventbus"
	"github.com/skeinhq/skein/internal/idempotency"
	"github.com/skeinhq/skein/internal/interpolate"
	"github.com/skeinhq/skein/internal/leader"
	"github.com/skeinhq/skein/internal/lifecycle"
	"github.com/skeinhq/skein/internal/log"
	"github.com/skeinhq/skein/internal/metrics"
	"github.com/skeinhq/skein/internal/repository"
	"github.com/skeinhq/skein/internal/repository/memory"
	"github.com/skeinhq/skein/internal/repository/postgres"
	"github.com/skeinhq/skein/internal/repository/sqlite"
	"github.com/skeinhq/skein/internal/runner"
	"github.com/skeinhq/skein/internal/scheduler"
)

// Version information (injected via ldflags at build time).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := log.New(&log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format), AddSource: cfg.Log.AddSource})
	slog.SetDefault(logger)

	be, closeBackend, err := openBackend(cfg)
	if err != nil {
		logger.Error("open storage backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBackend()

	encKey, err := loadEncryptionKey(cfg, logger)
	if err != nil {
		logger.Error("load encryption key", slog.Any("error", err))
		os.Exit(1)
	}

	bus := eventbus.New(cfg.EventBus.Async)

	opts := []runner.Option{
		runner.WithIdempotency(idempotency.New(be, cfg.Idempotency.TTL)),
		runner.WithInterpolator(interpolate.New(repository.NewResolver(be, encKey), logger)),
		runner.WithLogger(logger.With(slog.String("component", "runner"))),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, runner.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
	}

	run := runner.New(be, bus, runner.NewRegistry(), opts...)
	lifecycleController := lifecycle.New(be)
	_ = lifecycleController // wired for an embedding caller; no transport in this process drives it

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := func(triggerCtx context.Context, workflowID uuid.UUID) error {
		return run.Run(triggerCtx, workflowID, domain.TriggerScheduled)
	}
	sched := scheduler.New(be, trigger, cfg.Scheduler.CheckInterval)
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.Leader.Enabled {
		pgBackend, ok := be.(*postgres.Backend)
		if !ok {
			logger.Error("leader election requires the postgres backend")
			os.Exit(1)
		}
		elector := leader.NewElector(leader.Config{
			DB:            pgBackend.DB(),
			InstanceID:    cfg.Leader.InstanceID,
			RetryInterval: cfg.Leader.RetryInterval,
			Logger:        logger,
		})
		elector.Start(ctx)
		defer elector.Stop()
	}

	logger.Info("skeind starting",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("backend", cfg.Storage.Backend),
	)

	if count, err := run.ReconcileOrphaned(ctx); err != nil {
		logger.Error("reconcile orphaned workflows", slog.Any("error", err))
	} else if count > 0 {
		logger.Info("reconciled orphaned workflows", slog.Int("count", count))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))
	cancel()
}

// loadEncryptionKey derives the encryption key from config, preferring an
// explicit base64 key over a passphrase. Neither being set is not an
// error: it only means any secret-scope interpolation will fail at
// resolve time.
func loadEncryptionKey(cfg *config.Config, logger *slog.Logger) (*cryptoutil.EncryptionKey, error) {
	switch {
	case cfg.Encryption.KeyBase64 != "":
		return cryptoutil.NewKeyFromBase64(cfg.Encryption.KeyBase64)
	case cfg.Encryption.Passphrase != "":
		return cryptoutil.NewKeyFromPassphrase(cfg.Encryption.Passphrase), nil
	default:
		logger.Warn("no encryption key configured; secret scopes will fail to resolve")
		return nil, nil
	}
}

// openBackend constructs the repository.Backend selected by
// cfg.Storage.Backend. The returned close func is always safe to call,
// even for backends (memory) with nothing to close.
func openBackend(cfg *config.Config) (repository.Backend, func(), error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		be := memory.New()
		return be, func() { _ = be.Close() }, nil
	case "sqlite":
		be, err := sqlite.New(sqlite.Config{Path: cfg.Storage.SQLite.Path, WAL: cfg.Storage.SQLite.WAL})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return be, func() { _ = be.Close() }, nil
	case "postgres":
		be, err := postgres.New(postgres.Config{
			ConnectionString: cfg.Storage.Postgres.ConnectionString,
			MaxOpenConns:     cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:     cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime:  cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres backend: %w", err)
		}
		return be, func() { _ = be.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

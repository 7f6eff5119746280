package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mojiQAQ/petsphoto/internal/adapter/repo"
	"github.com/mojiQAQ/petsphoto/internal/bootstrap"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/metrics"
	"github.com/mojiQAQ/petsphoto/internal/pipeline"
)

// The worker runs the reconciliation sweep that fails PROCESSING jobs left
// behind by a crashed or restarted api process.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	publisher, closeEvents := bootstrap.Events(ctx, cfg, &logger)
	defer closeEvents()

	registry := prometheus.NewRegistry()
	store := repo.NewStore(pool, &logger)
	reconciler := pipeline.NewReconciler(store, cfg.ReconcileStale, publisher, metrics.NewCollector(registry), &logger)

	if n, err := reconciler.Sweep(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: initial sweep failed")
	} else {
		logger.Info().Int("failed", n).Msg("worker: initial sweep done")
	}

	if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("worker: invalid reconcile schedule")
	}
	defer reconciler.Stop()
	logger.Info().
		Str("schedule", cfg.ReconcileSchedule).
		Dur("stale_after", cfg.ReconcileStale).
		Msg("worker: reconciler started")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("worker: metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: exited with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}

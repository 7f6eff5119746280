package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mojiQAQ/petsphoto/internal/adapter/repo"
	"github.com/mojiQAQ/petsphoto/internal/artifact"
	"github.com/mojiQAQ/petsphoto/internal/bootstrap"
	"github.com/mojiQAQ/petsphoto/internal/config"
	"github.com/mojiQAQ/petsphoto/internal/db"
	"github.com/mojiQAQ/petsphoto/internal/generation"
	"github.com/mojiQAQ/petsphoto/internal/http/handlers"
	"github.com/mojiQAQ/petsphoto/internal/http/httpapi"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/infra/credentials"
	"github.com/mojiQAQ/petsphoto/internal/infra/geoip"
	"github.com/mojiQAQ/petsphoto/internal/infra/google"
	"github.com/mojiQAQ/petsphoto/internal/metrics"
	"github.com/mojiQAQ/petsphoto/internal/middleware"
	"github.com/mojiQAQ/petsphoto/internal/pipeline"
	"github.com/mojiQAQ/petsphoto/internal/providers/image"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL, db.Up); err != nil {
			logger.Fatal().Err(err).Msg("api: migration failed")
		}
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	objects, err := bootstrap.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("api: storage init failed")
	}

	publisher, closeEvents := bootstrap.Events(ctx, cfg, &logger)
	defer closeEvents()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	store := repo.NewStore(pool, &logger)
	credStore := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	providers, err := config.NewProviderSource(cfg.ProviderConfigFile, credStore, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ProviderConfigFile).Msg("api: provider config failed")
	}

	httpClient := &http.Client{}
	deps := image.Deps{
		HTTPClient: httpClient,
		Logger:     &logger,
		Tokens:     google.NewRegistry(httpClient),
	}
	factory := func(id string, settings map[string]string) (image.Generator, error) {
		return image.New(id, settings, deps)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Sessions:  store,
		Providers: providers,
		Factory:   factory,
		Artifacts: artifact.NewMaterializer(artifact.Options{
			Store:           objects,
			HTTPClient:      httpClient,
			DownloadTimeout: cfg.DownloadTimeout,
			PublicPrefix:    cfg.PublicUploadPrefix,
			Logger:          &logger,
		}),
		Objects:      objects,
		PublicPrefix: cfg.PublicUploadPrefix,
		Events:       publisher,
		Metrics:      collector,
		Logger:       &logger,
	})
	dispatcher := pipeline.NewDispatcher(orchestrator, cfg.JobTimeout, &logger)

	svc := generation.NewService(generation.Options{
		Store:          store,
		Dispatcher:     dispatcher,
		Objects:        objects,
		PublicPrefix:   cfg.PublicUploadPrefix,
		Cost:           cfg.GenerationCost,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Events:         publisher,
		Metrics:        collector,
		Logger:         &logger,
	})

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("api: geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		countryLookup = resolver.CountryCode
	}

	app := handlers.NewApp(svc, objects, pool, cfg.MaxUploadBytes, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  countryLookup,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitPerMin),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		UploadPrefix:   cfg.PublicUploadPrefix,
		Logger:         logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: http shutdown")
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api: in-flight jobs cancelled")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: exited with error")
		return
	}
	logger.Info().Msg("api: stopped")
}

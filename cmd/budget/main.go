package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budget/internal/backend"
	"budget/internal/cache"
	"budget/internal/cli"
	apphttp "budget/internal/http"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	settings := services.NewSettingsService(res.Backend, m, logger)
	entries := services.NewEntryService(res.Backend, m, logger)
	dashboard := services.NewDashboardService(res.Backend, settings, m)

	caches := cache.NewManager(logger)
	if c, ok := res.Backend.(interface{ Cache() cache.Cleaner }); ok {
		caches.Register("sheet_ids", c.Cache())
		caches.StartCleanup(5 * time.Minute)
	}

	var ready apphttp.Pinger
	if p, ok := res.Backend.(backend.Pinger); ok {
		ready = p
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Entries:        entries,
		Dashboard:      dashboard,
		Settings:       settings,
		Metrics:        m,
		Logger:         logger,
		Ready:          ready,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting budget server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

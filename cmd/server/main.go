// Package main is the entry point for the routeplanner server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randytsao24/routeplanner/internal/api"
	"github.com/randytsao24/routeplanner/internal/config"
	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/planner"
	"github.com/randytsao24/routeplanner/internal/refresh"
	"github.com/randytsao24/routeplanner/internal/transit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogging(cfg)

	catalog := location.NewCatalog()
	if err := catalog.Load(cfg.StationsFile); err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}
	slog.Info("stations loaded", "count", catalog.Count(), "file", cfg.StationsFile)

	subway := transit.NewSubwayService(catalog, cfg.HTTPTimeout, cfg.CacheTTL,
		transit.WithAPIKey(cfg.MTAAPIKey),
		transit.WithLimits(cfg.MaxTrains, cfg.MaxMinutes),
	)
	defer subway.Close()

	routePlanner := planner.New(catalog, cfg.DistanceThresholdKm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := refresh.New(catalog, subway, cfg.StationsFile, cfg.RefreshInterval)
	go refresher.Run(ctx)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Planner:  routePlanner,
			Arrivals: subway,
			Catalog:  catalog,
			Timeout:  15 * time.Second,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("routeplanner server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"url", "http://localhost:"+cfg.Port,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Package main is the entry point for the permanent portfolio tracker.
// It values a four-bucket portfolio from live quotes, reports drift from
// the target split, suggests how to allocate new contributions and tracks
// deposits for money-weighted returns.
//
// The application uses a 4-database architecture:
// - config.db: buckets, assets, runtime settings, notification state
// - ledger.db: deposits and withdrawals
// - history.db: valuation snapshots
// - client_data.db: cached adapter responses
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/di"
	"github.com/aristath/permanent/internal/server"
	"github.com/aristath/permanent/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("currency", cfg.BaseCurrency).
		Msg("Starting permanent portfolio tracker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire all dependencies
	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Quote cache refresh loop
	cacheDone := make(chan struct{})
	go func() {
		defer close(cacheDone)
		container.QuoteCache.Run(ctx)
	}()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancel()
	<-cacheDone
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}

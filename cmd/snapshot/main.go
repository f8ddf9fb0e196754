// Package main provides the snapshot worker entry point.
// It refreshes every source and records the net worth daily at 00:00 UTC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wallet-aggregator/internal/app"
	"github.com/wallet-aggregator/internal/config"
	"github.com/wallet-aggregator/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	// Check for one-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		logger.Info("Running snapshot immediately...")
		res, err := application.Snapshots.RunOnce(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to write snapshot")
			return
		}
		logger.WithFields(map[string]interface{}{
			"changed": res.Changed,
			"message": res.Message,
		}).Info("Snapshot complete")
		application.LogBreakers(ctx)
		return
	}

	logger.Info("Starting snapshot scheduler...")
	if err := application.Snapshots.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start snapshot scheduler")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down snapshot worker...")
	if err := application.Snapshots.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler stop failed")
	}
	cancel()
	logger.Info("Worker stopped")
}

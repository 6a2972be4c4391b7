package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/config"
	"github.com/shreyank06/data-engineering-project/internal/logger"
	"github.com/shreyank06/data-engineering-project/internal/pipeline"
	"github.com/shreyank06/data-engineering-project/internal/repository/sqlite"
	"github.com/shreyank06/data-engineering-project/internal/scorer"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting attribution pipeline",
		zap.String("environment", cfg.Service.Environment),
		zap.String("database", cfg.Database.Path))

	// Open the event store
	store, err := sqlite.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatal("Failed to open event store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close event store", zap.Error(err))
		}
	}()

	if err := store.Migrate(); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	client := scorer.NewHTTPClient(cfg.Scorer, log)
	runner := pipeline.NewRunner(cfg, store, client, log)

	// Cancel the run on SIGINT/SIGTERM; in-flight batches finish, queued
	// batches are abandoned and reported as failed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warn("Received signal, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	summary, err := runner.Run(ctx, nil)
	if err != nil {
		log.Fatal("Pipeline run failed",
			zap.String("stage", summary.Stage),
			zap.Error(err))
	}

	log.Info("Pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.String("stage", summary.Stage),
		zap.Int("journeys_submitted", summary.JourneysSubmitted),
		zap.Int("credit_rows_persisted", summary.CreditRowsPersisted),
		zap.Strings("failed_conv_ids", summary.FailedConvIDs),
		zap.Int("invariant_violations", len(summary.InvariantViolations)))
}

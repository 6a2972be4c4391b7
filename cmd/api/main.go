package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/config"
	"github.com/shreyank06/data-engineering-project/internal/handler"
	"github.com/shreyank06/data-engineering-project/internal/logger"
	"github.com/shreyank06/data-engineering-project/internal/pipeline"
	"github.com/shreyank06/data-engineering-project/internal/report"
	"github.com/shreyank06/data-engineering-project/internal/repository/sqlite"
	"github.com/shreyank06/data-engineering-project/internal/scorer"
)

func main() {
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

	log.Info("Starting attribution API",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	// Open the event store
	store, err := sqlite.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatal("Failed to open event store", zap.Error(err))
	}
	defer func(store *sqlite.Store) {
		if err := store.Close(); err != nil {
			log.Error("Failed to close event store", zap.Error(err))
		}
	}(store)

	if err := store.Migrate(); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	client := scorer.NewHTTPClient(cfg.Scorer, log)
	runner := pipeline.NewRunner(cfg, store, client, log)
	reports := report.NewService(store, log)

	h := handler.NewHandler(runner, reports, store, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
}

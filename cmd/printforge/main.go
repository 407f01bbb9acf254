package main

import (
	"PrintForge/internal/api"
	"PrintForge/internal/catalog"
	"PrintForge/internal/config"
	"PrintForge/internal/importer"
	"PrintForge/internal/job"
	"PrintForge/internal/pipeline"
	"PrintForge/internal/pipeline/storage"
	"PrintForge/internal/sdk"
	types "PrintForge/pkg"
	"PrintForge/pkg/tool"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Bootstrap logger until the configured one is ready
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}

	configPath := os.Getenv("PRINTFORGE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	configLoader := config.NewConfigLoader(logger)
	cfg, err := configLoader.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger, err = buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("can't build configured logger: %v", err)
	}
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			log.Printf("error syncing logger: %v", err)
		}
	}(logger)

	ctx := context.Background()

	// Database
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	err = storage.Retry(ctx, logger, cfg.Pipeline.Retry, "database ping", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		logger.Fatal("Database unreachable", zap.Error(err))
	}

	store := job.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply database schema", zap.Error(err))
	}

	manager := job.NewManager(store, logger)

	// Workflow catalog, selection persisted through the run store.
	// A broken definition file degrades to empty tables instead of
	// refusing to start.
	catalogStore := catalog.NewStore(catalog.NewLoader(logger), cfg.Pipeline.DefinitionsPath, store, logger)
	if err := catalogStore.Reload(ctx); err != nil {
		logger.Warn("Starting with empty workflow catalog", zap.Error(err))
	}

	// Pipeline engine with the run manager recording progress
	engine, err := pipeline.NewEngine(tool.NewRunner(cfg.Pipeline.Shell), pipeline.Options{
		ExiftoolPath: cfg.Pipeline.ExiftoolPath,
		StepOptions:  cfg.Pipeline.StepOptions,
	}, manager, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline engine", zap.Error(err))
	}

	var imp *importer.Importer
	if cfg.Import.LibraryDir != "" {
		imp = importer.New(cfg.Import.LibraryDir, logger)
	}

	var archiver *storage.Archiver
	if cfg.Storage.Type != "" {
		storageImpl, err := storage.NewStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Failed to init storage", zap.Error(err))
		}
		archiver = storage.NewArchiver(storageImpl, storage.Bucket(cfg.Storage), cfg.Pipeline.Retry, logger)
	}

	client := sdk.NewClient(catalogStore, engine, imp, archiver, cfg.Import, logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("Error closing pipeline client", zap.Error(err))
		}
	}()

	// Periodic cleanup of old run records
	scheduler := cron.New()
	err = scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		manager.CleanupOldRuns(cleanupCtx, time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour)
	})
	if err != nil {
		logger.Fatal("Invalid cleanup schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(client, manager, catalogStore, archiver, cfg, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// buildLogger applies the configured level and output to a production
// zap config. The "console" output keeps zap's defaults.
func buildLogger(cfg types.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output == "file" {
		zapCfg.OutputPaths = []string{cfg.FilePath}
		zapCfg.ErrorOutputPaths = []string{cfg.FilePath}
	}

	return zapCfg.Build()
}

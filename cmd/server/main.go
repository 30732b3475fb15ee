package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"casaval/server/config"
	"casaval/server/internal/api"
	"casaval/server/internal/database"
	"casaval/server/internal/diagnostics"
	"casaval/server/internal/matching"
	"casaval/server/internal/processor"
	"casaval/server/internal/queue"
	"casaval/server/internal/spatial"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create database directory")
		}
	}
	logger.Infof("Using database at: %s", cfg.Database.Path)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	index := spatial.NewIndex()
	store := database.NewStore(db, index)

	zones := config.NewZoneRegistry()
	if cfg.Zones.Path != "" {
		if err := zones.LoadFile(cfg.Zones.Path); err != nil {
			logger.WithError(err).WithField("path", cfg.Zones.Path).Warn("Failed to load zone overrides, using built-in registry")
		}
	}

	// Build the spatial index before serving, then keep it fresh
	refresher := spatial.NewRefresher(index, store, cfg.Index.RebuildInterval, cfg.Index.RefreshDebounce, logger)
	if err := refresher.RebuildNow(context.Background()); err != nil {
		logger.WithError(err).Warn("Initial index build failed, spatial search unavailable until next refresh")
	}
	refresher.Start()

	// Ingestion pipeline: HTTP batches -> queue -> processor -> store
	upsertQueue := queue.NewUpsertQueue(cfg.BatchProcessing.QueueSize, logger)
	batchProcessor, err := processor.NewBatchProcessor(store, upsertQueue, refresher, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create batch processor")
	}
	batchProcessor.Start()
	upsertQueue.Start()

	var engineOpts []matching.Option
	var publisher *diagnostics.Publisher
	if cfg.Diagnostics.NATSURL != "" {
		publisher, err = diagnostics.NewPublisher(cfg.Diagnostics.NATSURL, cfg.Diagnostics.Subject, logger)
		if err != nil {
			logger.WithError(err).Warn("Diagnostics publisher unavailable, continuing without it")
		} else {
			engineOpts = append(engineOpts, matching.WithMonitor(publisher))
		}
	}

	engine := matching.NewEngine(store, zones, matching.ParamsFromConfig(cfg), logger, engineOpts...)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	api.SetupRoutes(router, engine, store, upsertQueue, cfg.BatchProcessing.MaxBatchSize, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	// Drain in pipeline order so queued batches still reach the store
	if err := upsertQueue.Close(); err != nil {
		logger.WithError(err).Error("Queue close error")
	}
	batchProcessor.Stop(shutdownCtx)
	refresher.Stop()
	if publisher != nil {
		publisher.Close()
	}

	logger.Info("Server stopped")
}

// Package main provides the API server entry point for the account sync service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/account-sync/internal/aggregator"
	"github.com/account-sync/internal/api"
	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/executor"
	"github.com/account-sync/internal/featuregate"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/rategate"
	"github.com/account-sync/internal/reconcile"
	"github.com/account-sync/internal/scheduler"
	"github.com/account-sync/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		os.Exit(1)
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to ClickHouse")
		os.Exit(1)
	}
	defer clickhouse.Close()

	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisCache.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	holdingRepo := storage.NewHoldingRepository(postgres)
	entryRepo := storage.NewEntryRepository(postgres)
	connectionRepo := storage.NewConnectionRepository(postgres)
	attemptRepo := storage.NewSyncAttemptRepository(postgres)
	queueRepo := storage.NewQueueRepository(postgres)
	attemptArchive := storage.NewAttemptArchive(clickhouse)

	// Rate gate backed by Redis so cooldowns hold across processes
	gate, err := rategate.NewRedis(redisCache.Client())
	if err != nil {
		logger.WithError(err).Error("Failed to create rate gate")
		os.Exit(1)
	}

	features := featuregate.NewRedisGate(redisCache.Client())

	// Aggregator client
	client, err := aggregator.NewHTTPClient(&cfg.Aggregator)
	if err != nil {
		logger.WithError(err).Error("Failed to create aggregator client")
		os.Exit(1)
	}

	// Sync pipeline
	reconciler := reconcile.NewReconciler(holdingRepo, entryRepo)

	exec := executor.New(&executor.Config{
		Gate:           gate,
		Features:       features,
		Connections:    connectionRepo,
		Client:         client,
		Reconciler:     reconciler,
		Attempts:       attemptRepo,
		Archive:        attemptArchive,
		LookbackMonths: cfg.Aggregator.LookbackMonths,
	})

	sched, err := scheduler.New(&scheduler.Config{
		Executor:          exec,
		Store:             queueRepo,
		Sweeper:           attemptRepo,
		TickInterval:      cfg.Scheduler.TickInterval,
		MaxConcurrent:     cfg.Scheduler.MaxConcurrent,
		StaleAfter:        cfg.Scheduler.StaleAfter,
		SweepInterval:     cfg.Scheduler.SweepInterval,
		InProgressTimeout: cfg.Scheduler.InProgressTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create scheduler")
		os.Exit(1)
	}

	schedulerCtx, cancelScheduler := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancelScheduler()

	if err := sched.Start(schedulerCtx); err != nil {
		logger.WithError(err).Error("Failed to start scheduler")
		os.Exit(1)
	}

	logger.WithFields(map[string]interface{}{
		"maxConcurrent": cfg.Scheduler.MaxConcurrent,
		"tick":          cfg.Scheduler.TickInterval.String(),
	}).Info("Scheduler started")

	// HTTP server
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(
		serverConfig,
		sched,
		attemptRepo,
		connectionRepo,
		features,
		gate,
		map[string]api.HealthChecker{
			"postgres":   postgres,
			"clickhouse": clickhouse,
			"redis":      redisCache,
		},
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if err := sched.Stop(ctx); err != nil {
		logger.WithError(err).Error("Scheduler forced to shutdown")
	}

	logger.Info("Server exited")
}

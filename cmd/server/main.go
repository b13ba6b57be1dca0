package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leagueops/scorekeeper/internal/auth"
	"github.com/leagueops/scorekeeper/internal/broadcast"
	"github.com/leagueops/scorekeeper/internal/config"
	"github.com/leagueops/scorekeeper/internal/eventstore"
	"github.com/leagueops/scorekeeper/internal/handler"
	"github.com/leagueops/scorekeeper/internal/kafka"
	"github.com/leagueops/scorekeeper/internal/metrics"
	"github.com/leagueops/scorekeeper/internal/postgres"
	"github.com/leagueops/scorekeeper/internal/projector"
	"github.com/leagueops/scorekeeper/internal/scoring"
	"github.com/leagueops/scorekeeper/internal/snapshot"
	"github.com/leagueops/scorekeeper/internal/standings"
	"github.com/leagueops/scorekeeper/internal/tenant"
	"github.com/leagueops/scorekeeper/internal/websocket"
	"github.com/leagueops/scorekeeper/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prometheus metrics
	m := metrics.New()

	// Initialize the event store on Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	store, err := eventstore.NewStore(&cfg.Redis, &cfg.EventStore, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL behind the tenant guard
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, func(db tenant.Querier) *tenant.Guard {
		return tenant.NewGuard(db, logger, m)
	}, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connection registry shares the event store's Redis pool
	registry := broadcast.NewRegistry(store.Client(), logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(registry, logger)
	go wsHub.Run()
	logger.Info("websocket hub initialized")

	// Assemble the scoring pipeline
	proj := projector.New(repo, store, logger)
	standingsEngine := standings.NewEngine(repo, logger, m)
	snapshots := snapshot.NewGenerator(repo, store, cfg.EventStore.RecentEventMax, logger, m)
	dispatcher := broadcast.NewDispatcher(registry, wsHub, logger, m)
	scoringService := scoring.NewService(store, proj, standingsEngine, snapshots, dispatcher, logger, m)

	verifier := auth.NewVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer)

	// Initialize maintenance worker
	maintenance := worker.NewMaintenanceWorker(store, registry, &cfg.Worker, logger)
	if cfg.Worker.Enabled {
		if err := maintenance.Start(ctx); err != nil {
			logger.Error("failed to start maintenance worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for the arena feed
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, scoringService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(scoringService, repo, verifier, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop maintenance worker
	if maintenance.IsRunning() {
		if err := maintenance.Stop(); err != nil {
			logger.Error("failed to stop maintenance worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shop server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store
  3. Start the event bus with its observers (restocker, optional SQS)
  4. Create the service, API handler and router
  5. Start the daily refund scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env HTTP_PORT)
  -db      SQLite database path (default: shop.db, env DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Drain the event bus
  5. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/shop.db"

  # Forward events to SQS
  SQS_QUEUE_URL=https://sqs.eu-west-1.amazonaws.com/123/shop ./server

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/shop-engine/api"
	"github.com/warp/shop-engine/config"
	"github.com/warp/shop-engine/notify"
	"github.com/warp/shop-engine/shop"
	"github.com/warp/shop-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.TokenSecret == "" {
		cfg.TokenSecret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("TOKEN_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Event bus and observers
	bus := notify.NewBus(logger, cfg.EventQueueSize, notify.DefaultWorkers)
	notify.NewRestocker(store, cfg.RestockQuantity, logger).Register(bus)
	if cfg.SQSQueueURL != "" {
		client, err := notify.NewSQSClient(context.Background())
		if err != nil {
			return fmt.Errorf("failed to create SQS client: %w", err)
		}
		notify.NewSQSForwarder(client, cfg.SQSQueueURL).Register(bus)
		logger.Info("forwarding events to SQS", "queue_url", cfg.SQSQueueURL)
	}

	svc := shop.NewService(store,
		shop.WithNotifier(bus),
		shop.WithLogger(logger),
		shop.WithRefundWindow(cfg.RefundWindow),
	)

	// Initialize handler and router
	tokens := api.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, nil)
	handler := api.NewHandler(svc, tokens, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Visits:         api.NewVisitCounter(10),
		Logger:         logger.With("component", "http"),
	})

	scheduler := api.NewRefundScheduler(svc, logger)
	scheduler.At = cfg.DeclineRefundsAt
	scheduler.Location = cfg.SchedulerLocation
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath, "refund_window", cfg.RefundWindow.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		scheduler.Stop()
		bus.Close()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	bus.Close()
	logger.Info("server stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

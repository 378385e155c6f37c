/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ticket stock engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from STOCK_* environment variables
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire registry, ledger, engine, snapshot service
  5. Start the nightly snapshot job
  6. Start server with graceful shutdown

CONFIGURATION:
  STOCK_PORT           HTTP server port (default: 8080)
  STOCK_DB_PATH        SQLite database path (default: stock.db,
                       ":memory:" for in-memory)
  STOCK_LOG_LEVEL      trace|debug|info|warn|error (default: info)
  STOCK_LOG_JSON       JSON log output (default: false)
  STOCK_FACE_VALUE     Ticket face value (default: 500)
  STOCK_SNAPSHOT_CRON  Nightly snapshot schedule (default: "0 2 * * *",
                       empty disables)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the snapshot scheduler
  4. Close the database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tollgate/stock-engine/api"
	"github.com/tollgate/stock-engine/config"
	"github.com/tollgate/stock-engine/snapshot"
	"github.com/tollgate/stock-engine/stock"
	"github.com/tollgate/stock-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Domain wiring. The engine composes the registry and ledger inside
	// one transaction per movement; the snapshot service reads the ledger
	// and revenue declarations.
	face := cfg.Face()
	registry := stock.NewRegistry(store, face, log)
	ledger := stock.NewLedger(store, face, log)
	notifier := stock.LogNotifier{Log: log}
	engine := stock.NewEngine(store, registry, ledger, store, notifier, face, log)
	snapshots := snapshot.NewService(store, ledger, store, store, face, log)

	handler := &api.Handler{
		Store:     store,
		Registry:  registry,
		Ledger:    ledger,
		Engine:    engine,
		Snapshots: snapshots,
		Face:      face,
		Log:       log,
	}
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewScheduler(snapshots, log)
	if cfg.SnapshotCron != "" {
		if err := scheduler.Start(cfg.SnapshotCron); err != nil {
			log.WithError(err).Fatal("failed to schedule snapshot job")
		}
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CTAG07/cadence/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDatabase opens the configured database, creating its directory and
// every schema the application needs.
func openDatabase(cfg *ServerConfig) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := initDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup model schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup auth schema: %w", err)
	}
	return db, nil
}

// serve runs the API server until it is shut down, restarting it in place
// whenever an action asks for it.
func serve(configPath string) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}

		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("cadence has shut down.")
	return nil
}

// run hosts the API server, and returns whenever the server is shutdown or restarted
func run(configPath string, actionChan chan string) (string, error) {

	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...")

	db, err := openDatabase(cfg.Server)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	server, err := NewServer(cm, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	apiHttpServer := &http.Server{
		Addr:              cfg.Server.ApiAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	if cfg.Server.WatchConfig {
		if err = watchConfig(watchCtx, configPath, actionChan, logger); err != nil {
			logger.Warn("Config hot reload disabled", "error", err)
		}
	}

	go func() {
		logger.Info("Starting cadence api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
			select {
			case actionChan <- actionShutdown:
			default:
			}
		}
	}()

	action := <-actionChan // Block here until the API, the config watcher or an OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	server.Close()
	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}

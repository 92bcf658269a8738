/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the routine engine server: configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (optionally a YAML config file)
  2. Build the zap logger
  3. Open the SQLite store
  4. Connect the progress cache (Redis when configured, TTL map otherwise)
  5. Wire the API handler and router
  6. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file path
  -port    HTTP server port (overrides config)
  -db      SQLite database path; ":memory:" for in-memory
  -dev     Human-readable console logging

ENVIRONMENT:
  SERVER_PORT, DB_PATH, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB override the
  config file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  in-flight requests, close the store and cache, exit.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/routine-engine/api"
	"github.com/warp/routine-engine/cache"
	"github.com/warp/routine-engine/config"
	"github.com/warp/routine-engine/routine"
	"github.com/warp/routine-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	dev := flag.Bool("dev", false, "human-readable console logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}
	if *dev {
		cfg.Log.Development = true
	}

	logger := newLogger(cfg.Log)
	defer logger.Sync()

	store, err := sqlite.New(cfg.DB.Path, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DB.Path), zap.Error(err))
	}
	defer store.Close()

	progressCache := newCache(cfg.Redis, logger)

	handler := api.NewHandler(store, progressCache, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.DB.Path),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LogConfig) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// newCache prefers Redis when configured so multiple instances share
// invalidations; otherwise an in-process TTL cache.
func newCache(cfg config.RedisConfig, logger *zap.Logger) routine.Cache {
	if cfg.Addr == "" {
		return cache.NewMemory()
	}

	rc := cache.NewRedis(cache.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, falling back to in-process cache",
			zap.String("addr", cfg.Addr), zap.Error(err))
		return cache.NewMemory()
	}

	logger.Info("redis progress cache connected", zap.String("addr", cfg.Addr))
	return rc
}

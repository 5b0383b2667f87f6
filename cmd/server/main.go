package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/acp/internal/api"
	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/config"
	"github.com/eldtechnologies/acp/internal/directory"
	"github.com/eldtechnologies/acp/internal/handlers"
	"github.com/eldtechnologies/acp/internal/jobledger"
	"github.com/eldtechnologies/acp/internal/settlement"
	"github.com/eldtechnologies/acp/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Initialize the record store
	dataStore, err := openStore(ctx, cfg, redisStore, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("record store unavailable")
	}
	defer dataStore.Close()

	// No settlement client ships with the server; balances report as
	// unavailable and escrows are recorded unchecked.
	bridge := settlement.NewBridge(nil, nil, logger)

	h := handlers.NewHandler(handlers.Deps{
		Store:      dataStore,
		Backend:    cfg.StoreBackend,
		Redis:      redisStore,
		Directory:  directory.New(dataStore, logger),
		Jobs:       jobledger.New(dataStore, nil, logger),
		Settlement: bridge,
		Logger:     logger,
	})

	// Create router
	router := api.NewRouter(logger, h, redisStore, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.StoreBackend).
			Msg("starting ACP server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// openStore opens the configured record store backend.
func openStore(ctx context.Context, cfg *config.Config, redisStore *store.RedisStore, logger zerolog.Logger) (store.DataStore, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Msg("migrations completed")

		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg, nil

	case config.BackendSQLite:
		sqlite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return sqlite, nil

	case config.BackendRedis:
		// Shares the connection opened for nonces and rate limits.
		return redisStore, nil

	default:
		logger.Warn().Msg("using in-memory store: records are lost on restart")
		return store.NewMemoryStore(), nil
	}
}

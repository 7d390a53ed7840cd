package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/api"
	"github.com/eldtechnologies/messenger/internal/config"
	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/store"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}

	// Stop connecting on SIGINT/SIGTERM as well as serving
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect the store and ensure the schema; no traffic before this succeeds
	logger.Info().Str("backend", cfg.StoreBackend).Msg("connecting to store...")
	tables, err := store.Open(ctx, cfg.StoreConfig(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store unavailable")
	}
	defer tables.Close()

	// Initialize Redis cache
	var cache *store.RedisCache
	if cfg.RedisURL != "" {
		cache, err = store.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer cache.Close()
		logger.Info().Msg("connected to Redis")
	}

	ids, err := messenger.NewSnowflakeIDs(cfg.NodeID)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid NODE_ID")
	}

	opts := messenger.Options{IDs: ids, Logger: logger}
	if cache != nil {
		opts.Cache = cache
	}
	svc, err := messenger.NewService(tables, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("service setup failed")
	}

	// Create router
	router := api.NewRouter(logger, api.Deps{
		Service:   svc,
		Tables:    tables,
		Cache:     cache,
		Whitelist: cfg.RateLimitWhitelist,
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
			Int64("node_id", cfg.NodeID).
			Msg("starting messenger server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	stop()

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/coordinator"
	"pricewatch/internal/extract"
	"pricewatch/internal/httpapi"
	"pricewatch/internal/lookup"
	"pricewatch/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()

	// Pick the persistence backend
	var persister store.Persister
	if cfg.RedisAddr != "" {
		rp := store.NewRedisPersister(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		defer rp.Close()
		persister = rp
		logger.Info("persisting cache to redis", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
	} else {
		persister = store.NewFilePersister(cfg.CachePath)
		logger.Info("persisting cache to file", "path", cfg.CachePath)
	}

	// Load the cache snapshot and apply the hard eviction horizon
	st := store.New(persister, nil)
	if err := st.Load(ctx); err != nil {
		log.Fatalf("Failed to load cache: %v", err)
	}
	removed, err := st.PruneExpired(ctx)
	if err != nil {
		log.Fatalf("Failed to prune cache: %v", err)
	}
	logger.Info("cache loaded", "entries", st.Len(), "pruned", removed)

	// Start the rate-limited fetch lane
	planner := extract.Planner{
		CatalogBaseURL: cfg.CatalogBaseURL,
		MarketBaseURL:  cfg.MarketBaseURL,
		ManncoBaseURL:  cfg.ManncoBaseURL,
	}
	coord := coordinator.New(
		planner,
		coordinator.NewHTTPClient(cfg.FetchTimeout),
		cfg.RequestInterval,
		cfg.RequestJitter,
		logger,
	)
	go coord.Run(ctx)

	// Wire the orchestrator and seed the tracked items
	svc := lookup.New(st, coord, logger)
	for _, d := range cfg.Descriptors() {
		svc.Track(d)
	}
	if n := svc.AutoCheck(ctx, cfg.AutoCheckCount); n > 0 {
		logger.Info("auto-checking tracked items", "count", n)
	}

	// Serve the HTTP surface
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(ctx, svc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.ListenAddr, "tracked", len(cfg.Items))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/savory/internal/config"
	"github.com/dukerupert/savory/internal/database"
	"github.com/dukerupert/savory/internal/logging"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/server"
	"github.com/dukerupert/savory/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "savory:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, memCache, closeCache, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := server.New(db, server.Options{
		Cache:          cache,
		CacheTTL:       cfg.Cache.TTL,
		Retry:          store.RetryPolicy{Retries: cfg.Retry.Retries, Delay: cfg.Retry.Delay},
		SessionTTL:     cfg.Session.TTL,
		SecureCookie:   cfg.Session.SecureCookie,
		LoginAttempts:  cfg.Login.Attempts,
		LoginWindow:    cfg.Login.Window,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("savory listening", "addr", httpServer.Addr, "cache", cfg.Cache.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		every(gctx, cfg.Session.CleanupInterval, func() {
			n, err := srv.SessionStore().DeleteExpired(gctx)
			if err != nil {
				logger.Error("delete expired sessions", "error", err)
				return
			}
			if n > 0 {
				logger.Info("deleted expired sessions", "count", n)
			}
			srv.RateLimiter().Cleanup()
		})
		return nil
	})
	if memCache != nil {
		g.Go(func() error {
			every(gctx, cfg.Cache.TTL, func() {
				if n := memCache.Sweep(); n > 0 {
					logger.Debug("swept search cache", "expired", n)
				}
			})
			return nil
		})
	}
	return g.Wait()
}

// buildCache returns the configured search cache. memCache is set only for
// the in-process backend, which needs periodic sweeping.
func buildCache(ctx context.Context, cfg *config.Config) (cache search.Cache, memCache *search.MemoryCache, closeFn func(), err error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return search.NewRedisCache(rdb), nil, func() { rdb.Close() }, nil
	case config.CacheNone:
		return nil, nil, func() {}, nil
	default:
		mc := search.NewMemoryCache()
		return mc, mc, func() {}, nil
	}
}

// every calls fn each interval until ctx ends. A non-positive interval
// disables the loop.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

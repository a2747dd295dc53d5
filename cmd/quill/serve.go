package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/blog"
	"github.com/alphabot-ai/quill/internal/config"
	httpapp "github.com/alphabot-ai/quill/internal/http"
	"github.com/alphabot-ai/quill/internal/rate"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/store/postgres"
	"github.com/alphabot-ai/quill/internal/store/sqlite"
	"github.com/alphabot-ai/quill/internal/telemetry"
)

const sweepInterval = time.Minute

type sweepingLimiter interface {
	rate.Limiter
	Sweep() int
}

func runServer(parent context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer st.Close()

	limiter, closeLimiter := newLimiter(cfg, logger)
	defer closeLimiter()
	go sweep(ctx, limiter, logger)

	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.TokenTTL)
	svc := blog.NewService(st, authSvc, logger)
	server := httpapp.NewServer(svc, limiter, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("quill listening", "addr", cfg.Addr, "store", cfg.Store, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Store == "postgres" {
		st, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// newLimiter shares counters through Redis when REDIS_ADDR is set.
func newLimiter(cfg config.Config, logger *slog.Logger) (sweepingLimiter, func()) {
	if cfg.RedisAddr == "" {
		return rate.NewMemory(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return rate.NewRedis(client, logger), func() { _ = client.Close() }
}

func sweep(ctx context.Context, limiter sweepingLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("rate buckets swept", "count", n)
			}
		}
	}
}

// Command server runs the visit registry ingestion API.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/alysalud/visitas/internal/config"
	"github.com/alysalud/visitas/internal/core"
	"github.com/alysalud/visitas/internal/lock"
	"github.com/alysalud/visitas/internal/logging"
	"github.com/alysalud/visitas/internal/registry"
	"github.com/alysalud/visitas/internal/web"
)

func main() {
	// A local .env wins over stale shell variables.
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	locker, closeLocker, err := tenantLocker(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLocker()

	service := core.NewService(registry.New(pool), locker, core.Options{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Timeout:       cfg.Upload.Timeout,
		PreviewLimit:  cfg.Ingest.PreviewLimit,
	})
	server := web.NewServer(service, cfg)

	slog.Info("starting server",
		"addr", cfg.Server.Addr(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit", cfg.Rate.Enabled,
		"redis_lock", cfg.Redis.LockEnabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := service.LimiterStatus().Active; active > 0 {
			slog.Info("draining ingestions", "active", active)
			if err := service.WaitForIngestions(shutdownCtx); err != nil {
				slog.Warn("ingestions still running at shutdown", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pc.MaxConns = int32(db.MaxConns)
	pc.MinConns = int32(db.MinConns)
	pc.MaxConnLifetime = db.MaxConnLifetime
	pc.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "database", pc.ConnConfig.Database, "max_conns", pc.MaxConns)
	return pool, nil
}

// tenantLocker returns the Redis lock when configured. A nil locker makes the
// service serialize tenants within this process only.
func tenantLocker(ctx context.Context, rc config.RedisConfig) (core.TenantLocker, func(), error) {
	if !rc.LockEnabled() {
		return nil, func() {}, nil
	}
	rdb, err := lock.Connect(ctx, rc.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	slog.Info("using redis tenant lock", "ttl", rc.LockTTL)
	return lock.NewRedis(rdb, rc.LockTTL), func() { rdb.Close() }, nil
}

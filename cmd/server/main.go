package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shortlink/internal/cache"
	"shortlink/internal/config"
	"shortlink/internal/handler"
	"shortlink/internal/lock"
	"shortlink/internal/logger"
	"shortlink/internal/ratelimit"
	"shortlink/internal/repository"
	"shortlink/internal/service"
)

// store is what the service and readiness probe need from a backend.
type store interface {
	service.Store
	handler.Pinger
}

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup, including the
// final log flush, runs before exit.
func realMain() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	var st store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart and not shared between instances")
		st = repository.NewMemory()
	default:
		db, err := openPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("postgres connectivity verified")

		if err := repository.Migrate(db); err != nil {
			return err
		}
		st = repository.NewRepo(db)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connectivity verified", zap.String("addr", cfg.Redis.Addr))

	linkCache := cache.NewRedis(rdb, cfg.CacheTTL, log.Named("cache"))
	svc := service.NewService(st, linkCache, lock.NewLocker(rdb, cfg.LockTTL), log.Named("service"), service.Options{
		LockTTL:        cfg.LockTTL,
		ClickMode:      service.ClickMode(cfg.Clicks.Mode),
		ClickWorkers:   cfg.Clicks.Workers,
		ClickQueueSize: cfg.Clicks.QueueSize,
	})

	h := handler.NewHandler(svc, ratelimit.New(rdb), log.Named("http"), handler.Options{
		BaseURL:     cfg.BaseURL,
		RateLimit:   cfg.RateLimit.Limit,
		RateWindow:  cfg.RateLimit.Window,
		CreateTries: cfg.Create.Retries,
		CreateDelay: cfg.Create.Backoff,
		Dependencies: map[string]handler.Pinger{
			"store": st,
			"redis": linkCache,
		},
	})

	// CORS
	allowed := handlers.AllowedOrigins([]string{"*"})
	allowedHeaders := handlers.AllowedHeaders([]string{"Content-Type"})
	allowedMethods := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
			handlers.ProxyHeaders(
				handlers.CORS(allowed, allowedHeaders, allowedMethods)(h.Routes()),
			),
		),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		svc.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	// pending clicks are flushed before the store and redis close
	svc.Close()
	log.Info("server gracefully stopped")
	return nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repository.NewRepo(db).Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

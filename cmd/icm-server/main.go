package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/icm/internal/app/migrate"
	httpx "github.com/splax/icm/internal/http"
	"github.com/splax/icm/internal/repository"
	"github.com/splax/icm/internal/repository/memory"
	"github.com/splax/icm/internal/repository/postgres"
	"github.com/splax/icm/internal/service/auth"
	"github.com/splax/icm/internal/service/environment"
	"github.com/splax/icm/internal/service/parameter"
	"github.com/splax/icm/internal/service/project"
	"github.com/splax/icm/pkg/config"
	"github.com/splax/icm/pkg/logger"
)

func main() {
	cfg := config.LoadServerConfig()
	log := logger.New("icm-server", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, err := auth.LoadServiceAccounts(cfg.ServiceAccountsFile)
	if err != nil {
		log.Error("failed to load service accounts", "path", cfg.ServiceAccountsFile, "error", err)
		os.Exit(1)
	}

	var store repository.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store = memory.New()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		runner, err := migrate.New(pool, cfg.DatabaseURL, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		store = postgres.New(pool)
	}

	authSvc := auth.New(accounts, log, cfg)
	projectSvc := project.New(store, log)
	environmentSvc := environment.New(store, store, log)
	parameterSvc := parameter.New(store, store, store, store, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if strings.TrimSpace(cfg.RateLimitRedisAddr) != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(cfg, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, projectSvc, environmentSvc, parameterSvc, limiter, cfg.RateLimitPerMinute, store.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("icm server starting", "addr", cfg.Addr, "accounts", len(accounts), "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("icm server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

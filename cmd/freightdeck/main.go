package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freightdeck/freightdeck/internal/app"
	"github.com/freightdeck/freightdeck/internal/audit"
	"github.com/freightdeck/freightdeck/internal/catalog"
	"github.com/freightdeck/freightdeck/internal/observability"
	"github.com/freightdeck/freightdeck/internal/partners"
	"github.com/freightdeck/freightdeck/internal/permissions"
	"github.com/freightdeck/freightdeck/internal/platform/cache"
	"github.com/freightdeck/freightdeck/internal/platform/db"
	"github.com/freightdeck/freightdeck/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			logger.Error("load catalog", slog.String("path", cfg.CatalogPath), slog.Any("error", err))
			os.Exit(1)
		}
	}

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	permStore := permissions.NewPGStore(pool, auditRepo)
	permCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	permService := permissions.NewService(permStore, cat, permCache, metrics, logger)
	guard := permissions.NewGuard(permService, logger)

	idempotency := shared.NewIdempotencyStore(pool)

	partnerStore := partners.NewStore(pool)
	partnerService := partners.NewService(partnerStore, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: permissions.NewHandler(logger, permService, cat, idempotency),
		AuditHandler:       audit.NewHandler(logger, auditService, permService),
		PartnersHandler:    partners.NewHandler(logger, partnerService),
		Guard:              guard,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palisade-app/palisade/internal/app"
	"github.com/palisade-app/palisade/internal/auth"
	"github.com/palisade-app/palisade/internal/observability"
	"github.com/palisade-app/palisade/internal/platform/cache"
	"github.com/palisade-app/palisade/internal/platform/db"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/roles"
	"github.com/palisade-app/palisade/internal/shared"
	"github.com/palisade-app/palisade/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Sessions will fail per request until Redis is reachable; startup
		// itself proceeds.
		logger.Warn("redis connect", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "palisade_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	// The permission store is lazy: a missing PG_DSN must not prevent the
	// server from starting, only the store-backed endpoints fail per call.
	lazyPool := db.NewLazy(cfg.PGDSN)
	defer lazyPool.Close()

	var store rbac.Store
	if lazyPool.Configured() || cfg.IsProduction() {
		store = rbac.NewRepository(lazyPool)
	} else {
		logger.Warn("PG_DSN unset, using in-memory permission store")
		store = rbac.NewMemStore()
	}

	rbacService := rbac.NewService(store)
	decider := rbac.NewDecider(store, logger)
	guard := rbac.Guard{Decider: decider, Logger: logger}
	interceptor := rbac.Interceptor{Decider: decider, Logger: logger}

	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	if err := rbacService.SeedCatalog(seedCtx, cfg.CatalogEntities); err != nil {
		logger.Warn("seed permission catalog", slog.Any("error", err))
	}
	cancelSeed()

	idp := auth.NewIdPClient(cfg.IdPURL, cfg.IdPKey)
	if !idp.Configured() {
		logger.Warn("identity provider unconfigured, sign-in disabled")
	}

	authHandler := auth.NewHandler(logger, idp, rbacService, decider, sessionManager, csrfManager)
	rolesHandler := roles.NewHandler(logger, rbacService, guard)
	usersHandler := users.NewHandler(logger, rbacService)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		Interceptor:        interceptor,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatewise/gatewise/internal/app"
	"github.com/gatewise/gatewise/internal/auth"
	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/observability"
	"github.com/gatewise/gatewise/internal/platform/cache"
	"github.com/gatewise/gatewise/internal/platform/db"
	"github.com/gatewise/gatewise/internal/registry"
	"github.com/gatewise/gatewise/internal/session"
	"github.com/gatewise/gatewise/internal/users"
	"github.com/gatewise/gatewise/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// Authorization core. The catalogs are built once here; a broken table
	// panics before the server binds.
	catalog := authz.DefaultCatalog()
	roleCatalog := authz.DefaultRoleCatalog(catalog)
	resolver := authz.NewResolver(catalog, roleCatalog)

	sessionStore := session.NewStore(cfg.SessionTTL)
	go sessionStore.RunSweeper(ctx, cfg.SessionSweepInterval)

	guard := authz.Middleware{
		Guard:  authz.NewGuard(sessionStore),
		Logger: logger,
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	throttle := auth.NewThrottle(redisClient, cfg.LoginFailLimit, cfg.LoginFailWindow)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, sessionStore, resolver, throttle, jobClient, logger)
	authHandler := auth.NewHandler(logger, authService, guard)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, catalog, roleCatalog, sessionStore, jobClient, logger)
	usersHandler := users.NewHandler(logger, usersService, resolver, guard)

	registryRepo := registry.NewRepository(dbpool)
	registryHandler := registry.NewHandler(logger, registryRepo, guard)

	sessionsHandler := session.NewHandler(logger, sessionStore, guard)
	permissionsHandler := authz.NewPermissionsHandler(catalog, roleCatalog, guard)

	metrics := observability.NewMetrics()
	if err := metrics.Registerer().Register(session.NewCollector(sessionStore)); err != nil {
		logger.Warn("register session collector", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RegistryHandler:    registryHandler,
		SessionsHandler:    sessionsHandler,
		PermissionsHandler: permissionsHandler,
		JobsHandler:        jobsHandler,
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

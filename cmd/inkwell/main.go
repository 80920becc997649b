package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inkwell-cms/inkwell/internal/app"
	"github.com/inkwell-cms/inkwell/internal/auth"
	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/comments"
	"github.com/inkwell-cms/inkwell/internal/mutation"
	"github.com/inkwell-cms/inkwell/internal/observability"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
	"github.com/inkwell-cms/inkwell/internal/posts"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/stats"
	"github.com/inkwell-cms/inkwell/internal/users"
	"github.com/inkwell-cms/inkwell/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()

	store := cache.NewStore(redisClient, logger)
	store.OnHit = metrics.CacheHit
	store.OnMiss = metrics.CacheMiss

	registry := authz.NewRegistry(cfg.BypassRoles)
	bus := change.NewBus(logger)
	pipeline := mutation.NewPipeline(mutation.PoolRunner{Pool: pool}, registry, bus, logger)
	pipeline.OnEmitFailure = metrics.EventEmitFailure

	coherence.NewCoordinator(store, logger).Register(bus)

	auditLogger := shared.NewAuditLogger(pool)
	bus.Subscribe(func(ctx context.Context, ev change.Event) error {
		entry := shared.AuditLog{
			Action:   string(ev.Op),
			Entity:   string(ev.Entity),
			EntityID: strconv.FormatInt(ev.ID, 10),
		}
		if principal := shared.PrincipalFromContext(ctx); principal != nil {
			entry.ActorID = principal.ID
		}
		return auditLogger.Record(ctx, entry)
	})

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo, pipeline, registry, store, logger, cfg.CacheRolesTTL)
	rbacService.RegisterRebuild(bus)
	if err := rbacService.Rebuild(ctx); err != nil {
		logger.Error("load permission registry", slog.Any("error", err))
		os.Exit(1)
	}
	rolesHandler := rbac.NewHandler(logger, rbacService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, pipeline, logger)
	usersHandler := users.NewHandler(logger, usersService)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(usersRepo, rbacRepo, tokenStore, logger)
	authHandler := auth.NewHandler(logger, authService)

	postsRepo := posts.NewRepository(pool)
	postsService := posts.NewService(postsRepo, pipeline, store, logger, cfg.CacheListTTL, cfg.CachePostTTL)
	postsHandler := posts.NewHandler(logger, postsService)

	commentsRepo := comments.NewRepository(pool)
	commentsService := comments.NewService(commentsRepo, pipeline, logger)
	commentsHandler := comments.NewHandler(logger, commentsService)

	statsRepo := stats.NewRepository(pool)
	statsService := stats.NewService(statsRepo, registry, store, logger, cfg.CacheStatsTTL, cfg.CacheStatsRangeTTL)
	statsHandler := stats.NewHandler(logger, statsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthService:     authService,
		AuthHandler:     authHandler,
		PostsHandler:    postsHandler,
		CommentsHandler: commentsHandler,
		UsersHandler:    usersHandler,
		RolesHandler:    rolesHandler,
		StatsHandler:    statsHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
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

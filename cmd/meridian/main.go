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

	"github.com/meridian-pim/meridian/internal/app"
	"github.com/meridian-pim/meridian/internal/auth"
	"github.com/meridian-pim/meridian/internal/federation"
	"github.com/meridian-pim/meridian/internal/invites"
	"github.com/meridian-pim/meridian/internal/observability"
	"github.com/meridian-pim/meridian/internal/passreset"
	"github.com/meridian-pim/meridian/internal/permissions"
	"github.com/meridian-pim/meridian/internal/platform/cache"
	"github.com/meridian-pim/meridian/internal/platform/db"
	"github.com/meridian-pim/meridian/internal/ratelimit"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/twofactor"
	"github.com/meridian-pim/meridian/internal/users"
	"github.com/meridian-pim/meridian/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	mailDispatcher := &jobs.MailDispatcher{Client: jobClient, BaseURL: cfg.BaseURL}

	activity := shared.NewActivityLogger(dbpool, logger)

	userRepo := users.NewRepository(dbpool)
	userService := users.NewService(userRepo, activity)

	twoFactorService := twofactor.NewService(userRepo, redisClient, "Meridian PIM")

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL)
	tokenStore := auth.NewRedisTokenStore(redisClient, "auth")
	authService := auth.NewService(userService, issuer, tokenStore, redisClient, twoFactorService, activity, auth.Config{
		AccessTTL:        cfg.AccessTTL,
		RefreshTTL:       cfg.RefreshTTL,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutWindow:    cfg.LockoutWindow,
	})

	passResetService := passreset.NewService(userRepo, tokenStore, mailDispatcher, logger, activity, cfg.ResetTokenTTL)

	inviteRepo := invites.NewRepository(dbpool)
	inviteService := invites.NewService(inviteRepo, userService, mailDispatcher, logger, activity, cfg.InviteTokenTTL)

	permRepo := permissions.NewRepository(dbpool)
	permService := permissions.NewService(permRepo, activity)

	directory := federation.NewLDAPDirectory(cfg.LDAPDialTimeout)
	fedRepo := federation.NewRepository(dbpool)
	fedService := federation.NewService(logger, fedRepo, directory, userService, redisClient, activity)

	limiter := ratelimit.New(redisClient, ratelimit.Config{
		MaxRequests: cfg.RateLimitMax,
		Window:      cfg.RateLimitWindow,
	})
	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService),
		TwoFactorHandler:   twofactor.NewHandler(logger, twoFactorService),
		PassResetHandler:   passreset.NewHandler(logger, passResetService),
		InvitesHandler:     invites.NewHandler(logger, inviteService),
		UsersHandler:       users.NewHandler(logger, userService, authService),
		PermissionsHandler: permissions.NewHandler(logger, permService, userService),
		FederationHandler:  federation.NewHandler(logger, fedService, jobClient),
		PermMiddleware:     permissions.Middleware{Service: permService, Logger: logger},
		Limiter:            limiter,
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

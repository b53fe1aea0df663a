package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-pim/meridian/internal/app"
	"github.com/meridian-pim/meridian/internal/federation"
	"github.com/meridian-pim/meridian/internal/notify"
	"github.com/meridian-pim/meridian/internal/platform/cache"
	"github.com/meridian-pim/meridian/internal/platform/db"
	"github.com/meridian-pim/meridian/internal/shared"
	"github.com/meridian-pim/meridian/internal/users"
	"github.com/meridian-pim/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	activity := shared.NewActivityLogger(dbpool, logger)

	userRepo := users.NewRepository(dbpool)
	userService := users.NewService(userRepo, activity)

	directory := federation.NewLDAPDirectory(cfg.LDAPDialTimeout)
	fedRepo := federation.NewRepository(dbpool)
	fedService := federation.NewService(logger, fedRepo, directory, userService, redisClient, activity)

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	webhooks := notify.NewWebhookDispatcher(cfg.WebhookURL)

	mailJob := jobs.NewMailSendJob(mailer, logger)
	webhookJob := jobs.NewWebhookSendJob(webhooks, logger)
	syncJob := jobs.NewDirectorySyncJob(fedService, logger)

	syncTask, err := jobs.NewDirectorySyncTask(jobs.DirectorySyncPayload{Tenant: cfg.SyncTenant})
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskTypeSendWebhook, Handler: webhookJob.Handle},
			{Type: jobs.TaskTypeDirectorySync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncSchedule, Task: syncTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("queue", jobs.QueueDefault))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

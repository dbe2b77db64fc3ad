package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/inventory-manager/inventory-manager/internal/app"
	"github.com/inventory-manager/inventory-manager/internal/assets"
	"github.com/inventory-manager/inventory-manager/internal/observability"
	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker has no dashboard, so the registry runs without a summary cache.
	metrics := observability.NewMetrics()
	gate := rbac.NewGate(roles.NewService(roles.NewRepository(pool)))
	assetsService := assets.NewService(assets.NewRepository(pool), gate, nil, assets.Config{ReturnNearDays: cfg.ReturnNearDays}, logger)
	mailer := mail.WithObserver(mail.NewSMTPSender(cfg.MailConfig(), logger), metrics)
	reminderJob := jobs.NewReturnReminderJob(assetsService, mailer, cfg.AppBaseURL, logger, metrics.Jobs())

	reminderTask, err := jobs.NewReturnRemindersTask(jobs.ReturnRemindersPayload{})
	if err != nil {
		logger.Error("build reminder task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  time.Local,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReturnReminders, Handler: reminderJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReminderCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("reminder_cron", cfg.ReminderCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/motorcrm/motorcrm/internal/app"
	"github.com/motorcrm/motorcrm/internal/bookings"
	"github.com/motorcrm/motorcrm/internal/i18n"
	jobmetrics "github.com/motorcrm/motorcrm/internal/jobs"
	"github.com/motorcrm/motorcrm/internal/notify"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var sender notify.Sender = notify.NewNoopSender(logger)
	if cfg.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		logger.Warn("RESEND_API_KEY not set, emails are logged only")
	}
	mailer, err := notify.NewMailer(sender, i18n.New(cfg.DefaultLocale), logger)
	if err != nil {
		logger.Error("init mailer", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	tokens := bookings.NewTokenSigner(cfg.RespondTokenSecret, cfg.RespondTokenTTL)
	workflow := bookings.NewWorkflow(bookings.NewRepository(pool), client, tokens, cfg.AppBaseURL, metrics, logger)

	processor := jobs.NewProcessor(jobs.ProcessorConfig{
		Mailer:      mailer,
		Keys:        shared.NewIdempotencyStore(pool),
		Reminder:    workflow,
		ReminderAge: bookings.ReminderAge,
		Metrics:     metrics,
		Logger:      logger,
	})

	schedule, err := jobs.DefaultSchedule()
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers:  processor.Handlers(),
		Cron:      schedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

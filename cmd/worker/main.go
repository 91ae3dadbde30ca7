package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tradewind-b2b/tradewind/internal/app"
	"github.com/tradewind-b2b/tradewind/internal/catalog"
	"github.com/tradewind-b2b/tradewind/internal/platform/db"
	"github.com/tradewind-b2b/tradewind/internal/quotes"
	"github.com/tradewind-b2b/tradewind/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	quoteRepo := quotes.NewRepository(pool)
	quoteService := quotes.NewService(quoteRepo, catalogRepo, logger)
	quoteService.SetValidity(time.Duration(cfg.QuoteValidDays)*24*time.Hour, cfg.QuoteExpiryWarn)

	expiryJob := jobs.NewQuoteExpiryJob(quoteService, client, logger, cfg.NotifyFromEmail)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuoteExpireSweep, Handler: expiryJob.HandleExpireSweep},
			{Type: jobs.TaskQuoteExpiryWarn, Handler: expiryJob.HandleExpiryWarn},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpiryCron, Task: jobs.NewQuoteExpireSweepTask()},
			{Spec: "0 9 * * *", Task: jobs.NewQuoteExpiryWarnTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
}

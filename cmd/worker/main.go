package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/mamcung-storefront/internal/app"
	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/config"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.ObsMetricsNS, nil)

	ledger := &audit.Ledger{}
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := app.OpenDatabase(ctx, cfg)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise database")
		}
		defer pool.Close()
		ledger = &audit.Ledger{Store: audit.PGStore{Pool: pool}, Enabled: cfg.LedgerEnabled}
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	onError := asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Warn().Err(err).Str("task_type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task_failed")
	})
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{cfg.TaskQueue: 1},
		Logger:          tasks.Logger{L: logger},
		ErrorHandler:    onError,
		ShutdownTimeout: 15 * time.Second,
	})

	mux := tasks.NewMux(tasks.CancelPaymentHandler{
		Payments: app.NewCommerceClient(cfg, logger),
		Ledger:   ledger,
		Logger:   logger,
	})

	logger.Info().Str("queue", cfg.TaskQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aksh-ita757/SMART-MART/internal/config"
	"github.com/aksh-ita757/SMART-MART/internal/fulfillment"
	invapp "github.com/aksh-ita757/SMART-MART/internal/inventory/application"
	invpg "github.com/aksh-ita757/SMART-MART/internal/inventory/infrastructure/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	orderpg "github.com/aksh-ita757/SMART-MART/internal/order/infrastructure/postgres"
	payapp "github.com/aksh-ita757/SMART-MART/internal/payment/application"
	"github.com/aksh-ita757/SMART-MART/internal/payment/infrastructure/gateway"
	paypg "github.com/aksh-ita757/SMART-MART/internal/payment/infrastructure/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/queue"
	"github.com/aksh-ita757/SMART-MART/internal/redisx"
	"github.com/aksh-ita757/SMART-MART/pkg/logging"
	"github.com/aksh-ita757/SMART-MART/pkg/metrics"
	"github.com/aksh-ita757/SMART-MART/pkg/shutdown"
	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

func main() {
	log := logging.New("worker")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load()

	tp, err := tracing.Init(ctx, "worker", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	notifier := notify.NewNotifier(log, strings.Split(cfg.KafkaBrokers, ","), 256)
	notifier.Start(ctx)
	defer notifier.Close()

	q := queue.New(log, rdb, cfg.QueueName, queue.Options{
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.BackoffBase,
		LockDuration:    cfg.LockDuration,
		MaxStalledCount: cfg.MaxStalledCount,
	})

	inv := invapp.NewService(invpg.NewRepository(log, pool))
	payments := payapp.NewService(log, paypg.NewRepository(log, pool), gateway.NewMock(log, 200*time.Millisecond))
	processor := fulfillment.NewProcessor(log, orderpg.NewRepository(log, pool), inv, payments, notifier, q)

	met := metrics.NewWorkerMetrics("worker")
	worker := queue.NewWorker(log, q, processor.Handle, met, queue.WorkerOptions{
		Concurrency:     cfg.Concurrency,
		JobTimeout:      cfg.JobTimeout,
		StalledInterval: cfg.StalledInterval,
	})

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	if err := worker.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("worker shutdown complete")
}

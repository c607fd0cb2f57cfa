package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aksh-ita757/SMART-MART/internal/config"
	invapp "github.com/aksh-ita757/SMART-MART/internal/inventory/application"
	invpg "github.com/aksh-ita757/SMART-MART/internal/inventory/infrastructure/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	orderapp "github.com/aksh-ita757/SMART-MART/internal/order/application"
	orderhttp "github.com/aksh-ita757/SMART-MART/internal/order/infrastructure/http"
	orderpg "github.com/aksh-ita757/SMART-MART/internal/order/infrastructure/postgres"
	payapp "github.com/aksh-ita757/SMART-MART/internal/payment/application"
	"github.com/aksh-ita757/SMART-MART/internal/payment/infrastructure/gateway"
	paypg "github.com/aksh-ita757/SMART-MART/internal/payment/infrastructure/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/postgres"
	"github.com/aksh-ita757/SMART-MART/internal/queue"
	"github.com/aksh-ita757/SMART-MART/internal/redisx"
	"github.com/aksh-ita757/SMART-MART/pkg/idempotency"
	"github.com/aksh-ita757/SMART-MART/pkg/logging"
	"github.com/aksh-ita757/SMART-MART/pkg/metrics"
	"github.com/aksh-ita757/SMART-MART/pkg/shutdown"
	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

func main() {
	log := logging.New("api")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load()

	tp, err := tracing.Init(ctx, "api", cfg.OTLPEndpoint, log)
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

	catalog := invapp.NewService(invpg.NewRepository(log, pool))
	payments := payapp.NewService(log, paypg.NewRepository(log, pool), gateway.NewMock(log, 200*time.Millisecond))
	orders := orderapp.NewService(log, orderpg.NewRepository(log, pool), catalog, q, payments, notifier)

	idem := idempotency.NewStore(rdb, 24*time.Hour)
	handler := orderhttp.NewHandler(log, orders, q, idem)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("api shutdown complete")
}

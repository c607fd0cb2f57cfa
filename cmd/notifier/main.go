package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/aksh-ita757/SMART-MART/internal/config"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	"github.com/aksh-ita757/SMART-MART/internal/redisx"
	"github.com/aksh-ita757/SMART-MART/pkg/logging"
	"github.com/aksh-ita757/SMART-MART/pkg/shutdown"
	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

func main() {
	log := logging.New("notifier")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load()

	tp, err := tracing.Init(ctx, "notifier", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	relay := notify.NewRelay(log, strings.Split(cfg.KafkaBrokers, ","), "notifier", rdb)
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("relay stopped with error", "err", err)
	}
	log.Info("notifier shutdown complete")
}

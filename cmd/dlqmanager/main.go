package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/YoussfAh/X-sub010/internal/config"
	"github.com/YoussfAh/X-sub010/internal/logging"
	"github.com/YoussfAh/X-sub010/internal/outbox"
	httptransport "github.com/YoussfAh/X-sub010/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, "insights-dlqmanager")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	group, ctx := errgroup.WithContext(ctx)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress}, promhttp.Handler())
	group.Go(func() error {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("dlq manager metrics listening")
		return httptransport.Run(ctx, metricsSrv, 10*time.Second)
	})

	group.Go(func() error {
		logger.Info().
			Dur("interval", cfg.DLQPollInterval).
			Int("max_retries", cfg.DLQMaxRetries).
			Msg("dlq manager started")
		return manager.Run(ctx, cfg.DLQPollInterval, defaultDLQBatchSize)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("dlq manager stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("dlq manager stopped")
}

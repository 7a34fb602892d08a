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
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/YoussfAh/X-sub010/internal/config"
	"github.com/YoussfAh/X-sub010/internal/consumer"
	"github.com/YoussfAh/X-sub010/internal/logging"
	"github.com/YoussfAh/X-sub010/internal/persistence/postgres"
	httptransport "github.com/YoussfAh/X-sub010/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, "insights-consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	handler := consumer.Fanout{
		consumer.NewUsageProjectionHandler(postgres.NewRepository(pool)),
		consumer.NewFlagChangeLogger(logger),
	}

	group, ctx := errgroup.WithContext(ctx)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.MetricsAddress}, promhttp.Handler())
	group.Go(func() error {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		return httptransport.Run(ctx, metricsSrv, 10*time.Second)
	})

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger.With().Str("topic", topic).Logger()))

		group.Go(func() error {
			defer reader.Close()
			logger.Info().Str("topic", topic).Str("group", cfg.ConsumerGroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("consumer stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("consumer stopped")
}

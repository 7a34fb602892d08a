package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/YoussfAh/X-sub010/internal/analysis"
	"github.com/YoussfAh/X-sub010/internal/api"
	"github.com/YoussfAh/X-sub010/internal/auth"
	"github.com/YoussfAh/X-sub010/internal/config"
	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/logging"
	"github.com/YoussfAh/X-sub010/internal/outbox"
	"github.com/YoussfAh/X-sub010/internal/persistence/memory"
	"github.com/YoussfAh/X-sub010/internal/persistence/postgres"
	httptransport "github.com/YoussfAh/X-sub010/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, "insights-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("insights-api stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("insights-api stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	completer, err := analysis.New(ctx, cfg)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	var repo domain.Repository
	switch cfg.StoreDriver {
	case "memory":
		store := memory.NewRepository()
		memory.Seed(store, time.Now())
		logger.Warn().Str("demo_user", memory.DemoUserID).Msg("using in-memory store with demo data")
		repo = store
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithBatchTimeout(10*time.Millisecond))
			defer producer.Close()
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(pool), producer, registry,
				cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
			group.Go(func() error {
				dispatcher.Start(ctx)
				return nil
			})
		}
	}

	service, err := domain.NewService(repo, completer, domain.Options{
		FlagDefaults:    cfg.FeatureFlagDefaults,
		AnalysisTimeout: cfg.AnalysisTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        service,
		Auth:           auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		Logger:         logger,
		AllowedOrigins: []string{cfg.CORSAllowedOrigin},
	})
	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress, cfg.AnalysisTimeout)
	server := httptransport.NewServer(serverCfg, router)

	group.Go(func() error {
		logger.Info().
			Str("address", cfg.HTTPAddress).
			Str("store", cfg.StoreDriver).
			Str("analysis_provider", cfg.AnalysisProvider).
			Msg("insights-api listening")
		return httptransport.Run(ctx, server, serverCfg.ShutdownTimeout)
	})

	return group.Wait()
}

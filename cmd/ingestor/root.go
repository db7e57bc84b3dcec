package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/yourorg/market-insights/internal/client"
	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/ingestion"
	"github.com/yourorg/market-insights/internal/logging"
	"github.com/yourorg/market-insights/internal/queue"
	"github.com/yourorg/market-insights/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRootCmd creates the ingestor command
func newRootCmd() *cobra.Command {
	var (
		configPath string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "ingestor",
		Short: "Poll market data vendors into the ingestion queue and the store",
		Long: `ingestor fetches quotes from TwelveData and publishes them to the ingestion
queue, and refreshes company profiles from Finnhub directly in the store.
Both pollers run on their cron schedules unless --once is given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, once, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/config.yaml", "Configuration file path")
	cmd.Flags().BoolVar(&once, "once", false, "Run both pollers once and exit")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, once bool, logger *zap.Logger) error {
	if cfg.Ingestion.TwelveData.APIKey == "" {
		logger.Warn("TwelveData API key is not set")
	}
	if cfg.Ingestion.Finnhub.APIKey == "" {
		logger.Warn("Finnhub API key is not set")
	}

	store := repository.NewStore(cfg.Database, logger)
	if err := store.Connect(ctx); err != nil {
		return err
	}
	defer store.Close()

	broker, err := queue.New(ctx, cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	quotes := ingestion.NewQuotePoller(
		client.NewTwelveDataClient(cfg.Ingestion.TwelveData, logger),
		broker,
		cfg.Relay.Queue,
		cfg.Ingestion.TwelveData,
		logger,
	)
	profiles := ingestion.NewProfilePoller(
		client.NewFinnhubClient(cfg.Ingestion.Finnhub, logger),
		repository.NewCompanyRepository(store, logger),
		cfg.Ingestion.Finnhub,
		logger,
	)
	ingestor := ingestion.NewIngestor(
		quotes,
		profiles,
		repository.NewTickerRepository(store, logger),
		cfg.Ingestion.Symbols,
		cfg.Ingestion.TickerRetryDelay,
		logger,
	)

	if once {
		ingestor.RunOnce(ctx)
		logger.Info("Ingestion run completed")
		return nil
	}

	scheduler := ingestion.NewScheduler(ctx, logger)
	if err := ingestor.Schedule(scheduler, cfg.Ingestion.TwelveData.Schedule, cfg.Ingestion.Finnhub.Schedule); err != nil {
		return fmt.Errorf("failed to schedule pollers: %w", err)
	}
	scheduler.Start()
	logger.Info("Ingestor started")

	<-ctx.Done()
	logger.Info("Shutting down ingestor...")
	scheduler.Stop()
	return nil
}

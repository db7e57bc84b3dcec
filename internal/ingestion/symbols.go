package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickerSource lists the symbols known to the store. ok is false when the
// store could not be read.
type TickerSource interface {
	Symbols(ctx context.Context) (symbols []string, ok bool)
}

// LoadSymbols returns the configured symbols, or else every stored ticker.
// Reading the store is retried every retryDelay until it succeeds or ctx
// is cancelled.
func LoadSymbols(ctx context.Context, configured []string, source TickerSource, retryDelay time.Duration, logger *zap.Logger) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}

	for {
		symbols, ok := source.Symbols(ctx)
		if ok {
			logger.Info("Loaded tickers", zap.Int("symbols", len(symbols)))
			return symbols, nil
		}

		logger.Warn("Failed to load tickers, retrying", zap.Duration("retry_in", retryDelay))
		if !sleep(ctx, retryDelay) {
			return nil, ctx.Err()
		}
	}
}

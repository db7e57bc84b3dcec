package repository

import (
	"context"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

// MarketRepository serves the derived views over the latest datetimes
type MarketRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewMarketRepository creates a new market repository
func NewMarketRepository(store *Store, logger *zap.Logger) *MarketRepository {
	return &MarketRepository{
		store:  store,
		logger: logger,
	}
}

// LatestOHLC returns the bars of the most recent datetime only
func (r *MarketRepository) LatestOHLC(ctx context.Context) []model.OHLC {
	query := `
		SELECT "datetime", "timestamp", ticker, name, open, high, low, close, volume, source
		FROM ohlc
		WHERE "datetime" = (SELECT MAX("datetime") FROM ohlc)
		ORDER BY ticker`

	rows := []model.OHLC{}
	if !r.store.FetchAll(ctx, &rows, query) {
		return []model.OHLC{}
	}
	return rows
}

// RecentWindow returns the bars of the latest datetime, each joined with
// the same ticker's bar at the second latest datetime. The lagged columns
// are NULL for tickers without a bar at that datetime.
func (r *MarketRepository) RecentWindow(ctx context.Context) []model.OHLCWindowRow {
	query := `
		WITH latest AS (
			SELECT DISTINCT "datetime" FROM ohlc ORDER BY "datetime" DESC LIMIT 2
		), windowed AS (
			SELECT o."datetime", o."timestamp", o.ticker, o.name, o.open, o.high,
				o.low, o.close, o.volume, o.source,
				LAG(o."datetime") OVER w AS prev_datetime,
				LAG(o.open) OVER w AS prev_open,
				LAG(o.high) OVER w AS prev_high,
				LAG(o.low) OVER w AS prev_low,
				LAG(o.close) OVER w AS prev_close,
				LAG(o.volume) OVER w AS prev_volume
			FROM ohlc o
			WHERE o."datetime" IN (SELECT "datetime" FROM latest)
			WINDOW w AS (PARTITION BY o.ticker ORDER BY o."datetime")
		)
		SELECT "datetime", "timestamp", ticker, name, open, high, low, close, volume, source,
			prev_datetime, prev_open, prev_high, prev_low, prev_close, prev_volume
		FROM windowed
		WHERE "datetime" = (SELECT MAX("datetime") FROM latest)
		ORDER BY ticker`

	rows := []model.OHLCWindowRow{}
	if !r.store.FetchAll(ctx, &rows, query) {
		return []model.OHLCWindowRow{}
	}
	return rows
}

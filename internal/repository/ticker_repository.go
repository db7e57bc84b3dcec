package repository

import (
	"context"

	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

// TickerRepository reads the ticker reference table
type TickerRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewTickerRepository creates a new ticker repository
func NewTickerRepository(store *Store, logger *zap.Logger) *TickerRepository {
	return &TickerRepository{
		store:  store,
		logger: logger,
	}
}

// GetAll returns every ticker, or an empty list when the query failed
func (r *TickerRepository) GetAll(ctx context.Context) []model.Ticker {
	tickers, _ := r.list(ctx)
	return tickers
}

// Symbols returns all ticker symbols; ok is false when the query failed so
// callers can tell an empty table from an unavailable store
func (r *TickerRepository) Symbols(ctx context.Context) (symbols []string, ok bool) {
	tickers, ok := r.list(ctx)
	if !ok {
		return nil, false
	}
	symbols = make([]string, 0, len(tickers))
	for _, t := range tickers {
		symbols = append(symbols, t.Ticker)
	}
	return symbols, true
}

// GetByTicker returns one ticker, nil when it does not exist
func (r *TickerRepository) GetByTicker(ctx context.Context, ticker string) *model.Ticker {
	var t model.Ticker
	if !r.store.FetchOne(ctx, &t, `SELECT ticker, name FROM tickers WHERE ticker = $1`, ticker) {
		return nil
	}
	return &t
}

func (r *TickerRepository) list(ctx context.Context) ([]model.Ticker, bool) {
	tickers := []model.Ticker{}
	if !r.store.FetchAll(ctx, &tickers, `SELECT ticker, name FROM tickers ORDER BY ticker`) {
		return []model.Ticker{}, false
	}
	return tickers, true
}

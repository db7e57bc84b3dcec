package ingestion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ingestor runs the quote and profile pollers over the current symbol list
type Ingestor struct {
	quotes     *QuotePoller
	profiles   *ProfilePoller
	tickers    TickerSource
	symbols    []string
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewIngestor creates a new ingestor. An empty symbols list means every
// stored ticker.
func NewIngestor(quotes *QuotePoller, profiles *ProfilePoller, tickers TickerSource, symbols []string, retryDelay time.Duration, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		quotes:     quotes,
		profiles:   profiles,
		tickers:    tickers,
		symbols:    symbols,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// RunQuotes publishes the latest quote of every symbol
func (i *Ingestor) RunQuotes(ctx context.Context) {
	symbols, err := LoadSymbols(ctx, i.symbols, i.tickers, i.retryDelay, i.logger)
	if err != nil {
		return
	}
	i.quotes.Poll(ctx, symbols)
}

// RunProfiles refreshes the profile of every symbol
func (i *Ingestor) RunProfiles(ctx context.Context) {
	symbols, err := LoadSymbols(ctx, i.symbols, i.tickers, i.retryDelay, i.logger)
	if err != nil {
		return
	}
	i.profiles.Poll(ctx, symbols)
}

// RunOnce runs both pollers concurrently and waits for them
func (i *Ingestor) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		i.RunProfiles(ctx)
	}()
	go func() {
		defer wg.Done()
		i.RunQuotes(ctx)
	}()
	wg.Wait()
}

// Schedule registers both pollers on their cron specs plus a startup run
func (i *Ingestor) Schedule(s *Scheduler, quoteSchedule, profileSchedule string) error {
	if err := s.AddScheduledJob("quotes", i.RunQuotes, quoteSchedule); err != nil {
		return err
	}
	if err := s.AddScheduledJob("profiles", i.RunProfiles, profileSchedule); err != nil {
		return err
	}
	s.AddStartupJob("quotes", i.RunQuotes, time.Second)
	s.AddStartupJob("profiles", i.RunProfiles, time.Second)
	return nil
}

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/market-insights/internal/client"
	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/model"

	"go.uber.org/zap"
)

const quoteSource = "twelvedata"

// QuoteFetcher fetches the latest quotes of several symbols at once
type QuoteFetcher interface {
	Quotes(ctx context.Context, symbols []string, interval string) ([]client.Quote, error)
}

// Publisher hands a payload to a named queue
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte) bool
}

// QuotePoller fetches quotes in batches and publishes each batch as one
// message for the relay
type QuotePoller struct {
	fetcher   QuoteFetcher
	publisher Publisher
	queue     string
	interval  string
	batchSize int
	delay     time.Duration
	logger    *zap.Logger
}

// NewQuotePoller creates a new quote poller
func NewQuotePoller(fetcher QuoteFetcher, publisher Publisher, queueName string, cfg config.TwelveDataConfig, logger *zap.Logger) *QuotePoller {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	return &QuotePoller{
		fetcher:   fetcher,
		publisher: publisher,
		queue:     queueName,
		interval:  cfg.Interval,
		batchSize: batchSize,
		delay:     cfg.BatchDelay,
		logger:    logger.Named("quotes"),
	}
}

// Poll fetches every symbol and returns the number of records published.
// It waits between batches to stay inside the vendor's rate limit.
func (p *QuotePoller) Poll(ctx context.Context, symbols []string) int {
	p.logger.Info("Fetching quotes", zap.Int("symbols", len(symbols)))

	published := 0
	for start := 0; start < len(symbols); start += p.batchSize {
		if start > 0 && !sleep(ctx, p.delay) {
			break
		}

		end := start + p.batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		quotes, err := p.fetcher.Quotes(ctx, batch, p.interval)
		if err != nil {
			p.logger.Error("Failed to fetch batch", zap.Strings("symbols", batch), zap.Error(err))
			continue
		}

		records := make([]model.OHLCMessage, 0, len(quotes))
		for _, quote := range quotes {
			record, err := quoteRecord(quote)
			if err != nil {
				p.logger.Warn("Skipping malformed quote", zap.String("symbol", quote.Symbol), zap.Error(err))
				continue
			}
			records = append(records, record)
		}
		p.logger.Info("Fetched batch", zap.Int("records", len(records)))

		if p.publish(ctx, records) {
			published += len(records)
		}
	}

	p.logger.Info("Published quotes", zap.Int("records", published))
	return published
}

func (p *QuotePoller) publish(ctx context.Context, records []model.OHLCMessage) bool {
	if len(records) == 0 {
		p.logger.Warn("No records to store")
		return false
	}

	payload, err := json.Marshal(records)
	if err != nil {
		p.logger.Error("Failed to marshal records", zap.Error(err))
		return false
	}
	if !p.publisher.Publish(ctx, p.queue, payload) {
		p.logger.Error("Failed to publish records", zap.Int("records", len(records)))
		return false
	}
	return true
}

// quoteRecord maps a vendor quote onto the queue record
func quoteRecord(q client.Quote) (model.OHLCMessage, error) {
	record := model.OHLCMessage{
		Datetime: q.Datetime,
		Ticker:   q.Symbol,
		Name:     q.Name,
		Source:   quoteSource,
	}

	var err error
	if record.Timestamp, err = q.Timestamp.Int64(); err != nil {
		return record, fmt.Errorf("timestamp: %w", err)
	}
	if record.Volume, err = q.Volume.Int64(); err != nil {
		return record, fmt.Errorf("volume: %w", err)
	}

	prices := []struct {
		name  string
		value json.Number
		dest  *float64
	}{
		{"open", q.Open, &record.Open},
		{"high", q.High, &record.High},
		{"low", q.Low, &record.Low},
		{"close", q.Close, &record.Close},
	}
	for _, price := range prices {
		if *price.dest, err = price.value.Float64(); err != nil {
			return record, fmt.Errorf("%s: %w", price.name, err)
		}
	}
	return record, nil
}

// sleep waits for d and reports false when ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourorg/market-insights/internal/queue"

	"go.uber.org/zap"
)

// ErrStorageUnavailable keeps a batch queued while the database is down
var ErrStorageUnavailable = errors.New("storage unavailable")

// RecordInserter writes loosely typed OHLC rows
type RecordInserter interface {
	InsertRecords(ctx context.Context, records []map[string]interface{}) bool
}

// Pinger reports whether the store answers
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Relay moves OHLC batches from the queue into storage
type Relay struct {
	records RecordInserter
	store   Pinger
	flush   func(ctx context.Context) error
	logger  *zap.Logger
}

// New creates a new relay
func New(records RecordInserter, store Pinger, logger *zap.Logger) *Relay {
	return &Relay{
		records: records,
		store:   store,
		logger:  logger.Named("relay"),
	}
}

// WithCacheFlush sets a hook that drops cached API responses after every
// stored batch
func (r *Relay) WithCacheFlush(flush func(ctx context.Context) error) *Relay {
	r.flush = flush
	return r
}

// Run drains queueName every interval until ctx is cancelled
func (r *Relay) Run(ctx context.Context, broker queue.Broker, queueName string, interval time.Duration) {
	queue.PeriodicConsume(ctx, broker, queueName, r.Handle, interval, r.logger)
}

// Handle inserts one queued batch. Only an unreachable store is reported
// as an error; rejected batches are logged and acknowledged.
func (r *Relay) Handle(ctx context.Context, payload []byte) error {
	records, err := decodeBatch(payload)
	if err != nil {
		r.logger.Warn("Dropping malformed batch", zap.Error(err))
		return nil
	}
	if len(records) == 0 {
		r.logger.Warn("Dropping empty batch")
		return nil
	}

	if !r.store.Ping(ctx) {
		return ErrStorageUnavailable
	}

	if !r.records.InsertRecords(ctx, records) {
		r.logger.Error("Batch rejected by storage", zap.Int("records", len(records)))
		return nil
	}

	r.logger.Info("Stored batch", zap.Int("records", len(records)))

	if r.flush != nil {
		if err := r.flush(ctx); err != nil {
			r.logger.Warn("Failed to flush cache", zap.Error(err))
		}
	}
	return nil
}

// decodeBatch accepts a JSON array of objects or a single object. Numbers
// keep their literal text.
func decodeBatch(payload []byte) ([]map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}

	switch value := doc.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{value}, nil
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(value))
		for i, item := range value {
			record, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("row %d is not an object", i)
			}
			records = append(records, record)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unexpected batch type %T", doc)
	}
}

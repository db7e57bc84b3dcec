package queue

import (
	"context"
	"fmt"

	"github.com/yourorg/market-insights/internal/config"

	"go.uber.org/zap"
)

// Handler processes one message body. A non-nil error leaves the message
// on the queue for a later drain.
type Handler func(ctx context.Context, payload []byte) error

// Broker publishes to and drains named queues
type Broker interface {
	// Publish sends payload to queue and reports whether the broker
	// confirmed it
	Publish(ctx context.Context, queue string, payload []byte) bool
	// Consume drains the messages currently available on queue and
	// returns how many were acknowledged
	Consume(ctx context.Context, queue string, handler Handler) (int, error)
	Close() error
}

// New connects the backend selected by cfg.Driver. Connecting retries
// until it succeeds or ctx is cancelled.
func New(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (Broker, error) {
	switch cfg.Driver {
	case "", "rabbitmq":
		broker := NewRabbitMQ(cfg, logger)
		if err := broker.Connect(ctx); err != nil {
			return nil, err
		}
		return broker, nil
	case "kafka":
		return NewKafka(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

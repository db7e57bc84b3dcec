package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PeriodicConsume drains queue, waits interval and repeats until ctx is
// cancelled. Drain errors are logged and the loop keeps going.
func PeriodicConsume(ctx context.Context, broker Broker, queue string, handler Handler, interval time.Duration, logger *zap.Logger) {
	logger.Info("Periodic consumption started",
		zap.String("queue", queue),
		zap.Duration("interval", interval))

	for {
		if _, err := broker.Consume(ctx, queue, handler); err != nil && ctx.Err() == nil {
			logger.Warn("Drain ended early", zap.String("queue", queue), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Periodic consumption stopped", zap.String("queue", queue))
			return
		case <-time.After(interval):
		}
		logger.Debug("Checking queue for new messages", zap.String("queue", queue))
	}
}

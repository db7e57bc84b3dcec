package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// delivery is one message fetched from a backend
type delivery interface {
	Body() []byte
	Ack() error
	// Nack hands the message back so it is delivered again
	Nack() error
}

// source yields the messages currently available on one queue. ok is
// false once the queue is empty.
type source interface {
	Next(ctx context.Context) (d delivery, ok bool, err error)
}

// drain feeds every available message to handler. Messages that are not
// a JSON document are acknowledged and dropped. A handler error hands the
// message back and ends the drain.
func drain(ctx context.Context, src source, handler Handler, logger *zap.Logger) (int, error) {
	consumed := 0
	for {
		if err := ctx.Err(); err != nil {
			return consumed, err
		}

		d, ok, err := src.Next(ctx)
		if err != nil {
			return consumed, fmt.Errorf("failed to fetch message: %w", err)
		}
		if !ok {
			return consumed, nil
		}

		body := d.Body()
		if !isDocument(body) {
			logger.Warn("Received invalid message", zap.Int("bytes", len(body)))
			if err := d.Ack(); err != nil {
				return consumed, fmt.Errorf("failed to ack message: %w", err)
			}
			consumed++
			continue
		}

		logger.Info("Processing new message")
		if err := handler(ctx, body); err != nil {
			logger.Error("Message handler failed, requeueing", zap.Error(err))
			if nackErr := d.Nack(); nackErr != nil {
				logger.Error("Failed to requeue message", zap.Error(nackErr))
			}
			return consumed, fmt.Errorf("handler failed: %w", err)
		}
		if err := d.Ack(); err != nil {
			return consumed, fmt.Errorf("failed to ack message: %w", err)
		}
		consumed++
	}
}

// isDocument reports whether body is valid JSON carrying a value, so
// empty bodies, null, empty arrays and empty objects are rejected
func isDocument(body []byte) bool {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil || compact.Len() == 0 {
		return false
	}
	switch compact.String() {
	case "null", "[]", "{}", `""`, "false", "0":
		return false
	}
	return true
}

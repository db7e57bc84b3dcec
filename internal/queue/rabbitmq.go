package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultAckTimeout = 5 * time.Second
	defaultRetryDelay = 10 * time.Second
)

// RabbitMQ is a Broker over a single AMQP channel in confirm mode.
// Queues are declared on first use and messages go through the default
// exchange.
type RabbitMQ struct {
	cfg    config.QueueConfig
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]struct{}
}

// NewRabbitMQ creates a broker that connects through Connect
func NewRabbitMQ(cfg config.QueueConfig, logger *zap.Logger) *RabbitMQ {
	return &RabbitMQ{
		cfg:      cfg,
		logger:   logger.Named("rabbitmq"),
		declared: make(map[string]struct{}),
	}
}

// Connect dials the broker, retrying on a fixed delay until it succeeds
// or ctx is cancelled
func (r *RabbitMQ) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked(ctx)
}

func (r *RabbitMQ) connectLocked(ctx context.Context) error {
	delay := r.cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	r.logger.Info("Connecting to RabbitMQ",
		zap.String("host", r.cfg.RabbitMQ.Host),
		zap.String("port", r.cfg.RabbitMQ.Port))

	operation := func() error {
		conn, err := amqp.Dial(r.cfg.RabbitMQ.URL())
		if err != nil {
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return err
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			conn.Close()
			return err
		}
		r.conn = conn
		r.ch = ch
		r.declared = make(map[string]struct{})
		return nil
	}
	notify := func(err error, next time.Duration) {
		r.logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Error(err),
			zap.Duration("retry_in", next))
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(delay), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return fmt.Errorf("rabbitmq connect aborted: %w", err)
	}

	r.logger.Info("Connected to RabbitMQ")
	return nil
}

// channel returns the open channel with queue declared, reconnecting first
// when the connection was lost
func (r *RabbitMQ) channel(ctx context.Context, queue string) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		if r.conn != nil {
			r.logger.Warn("RabbitMQ connection lost, reconnecting")
		}
		r.closeLocked()
		if err := r.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	if _, ok := r.declared[queue]; !ok {
		if _, err := r.ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		r.declared[queue] = struct{}{}
	}
	return r.ch, nil
}

// Publish sends payload to queue and waits for the broker confirm
func (r *RabbitMQ) Publish(ctx context.Context, queue string, payload []byte) bool {
	ch, err := r.channel(ctx, queue)
	if err != nil {
		r.logger.Error("Failed to publish message", zap.String("queue", queue), zap.Error(err))
		return false
	}

	timeout := r.cfg.AckTimeout
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		r.logger.Error("Failed to publish message", zap.String("queue", queue), zap.Error(err))
		return false
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		r.logger.Error("No publish confirm from RabbitMQ",
			zap.String("queue", queue),
			zap.Duration("timeout", timeout),
			zap.Error(err))
		return false
	}
	if !acked {
		r.logger.Error("RabbitMQ rejected message", zap.String("queue", queue))
		return false
	}

	r.logger.Debug("Published message", zap.String("queue", queue), zap.Int("bytes", len(payload)))
	return true
}

// Consume drains the messages currently on queue with basic.get
func (r *RabbitMQ) Consume(ctx context.Context, queue string, handler Handler) (int, error) {
	ch, err := r.channel(ctx, queue)
	if err != nil {
		return 0, err
	}

	consumed, err := drain(ctx, &amqpSource{ch: ch, queue: queue}, handler, r.logger)
	r.logger.Info("Consumed messages", zap.String("queue", queue), zap.Int("messages", consumed))
	return consumed, err
}

// Close shuts the channel and the connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Disconnecting from RabbitMQ")
	return r.closeLocked()
}

func (r *RabbitMQ) closeLocked() error {
	var errs []error
	if r.ch != nil && !r.ch.IsClosed() {
		errs = append(errs, r.ch.Close())
	}
	if r.conn != nil && !r.conn.IsClosed() {
		errs = append(errs, r.conn.Close())
	}
	r.ch = nil
	r.conn = nil
	return errors.Join(errs...)
}

type amqpSource struct {
	ch    *amqp.Channel
	queue string
}

func (s *amqpSource) Next(ctx context.Context) (delivery, bool, error) {
	msg, ok, err := s.ch.Get(s.queue, false)
	if err != nil || !ok {
		return nil, false, err
	}
	return amqpDelivery{msg: msg}, true, nil
}

type amqpDelivery struct {
	msg amqp.Delivery
}

func (d amqpDelivery) Body() []byte { return d.msg.Body }
func (d amqpDelivery) Ack() error   { return d.msg.Ack(false) }
func (d amqpDelivery) Nack() error  { return d.msg.Nack(false, true) }

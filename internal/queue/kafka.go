package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultIdleTimeout = 3 * time.Second

// Kafka is a Broker that maps each queue to a topic. Consumption goes
// through a consumer group and offsets are committed per message.
type Kafka struct {
	cfg     config.QueueConfig
	brokers []string
	logger  *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
}

// NewKafka creates a new Kafka broker
func NewKafka(cfg config.QueueConfig, logger *zap.Logger) *Kafka {
	return &Kafka{
		cfg:     cfg,
		brokers: cfg.Kafka.BrokerList(),
		logger:  logger.Named("kafka"),
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
	}
}

// getWriter returns a Kafka writer for the specified topic
func (k *Kafka) getWriter(topic string) *kafka.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	if writer, exists := k.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID: k.cfg.Kafka.ClientID,
		},
	}

	k.writers[topic] = writer
	return writer
}

// getReader returns the consumer group reader for the specified topic
func (k *Kafka) getReader(topic string) *kafka.Reader {
	k.mu.Lock()
	defer k.mu.Unlock()

	if reader, exists := k.readers[topic]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.cfg.Kafka.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer: &kafka.Dialer{
			ClientID: k.cfg.Kafka.ClientID,
			Timeout:  10 * time.Second,
		},
	})

	k.readers[topic] = reader
	return reader
}

// discardReader closes the topic's reader so the next drain restarts from
// the last committed offset
func (k *Kafka) discardReader(topic string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if reader, exists := k.readers[topic]; exists {
		if err := reader.Close(); err != nil {
			k.logger.Warn("Failed to close reader", zap.String("topic", topic), zap.Error(err))
		}
		delete(k.readers, topic)
	}
}

// Publish sends payload to the topic and waits for the leader ack
func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) bool {
	writer := k.getWriter(topic)

	timeout := k.cfg.AckTimeout
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := writer.WriteMessages(ctx, kafka.Message{
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		k.logger.Error("Failed to publish message",
			zap.String("topic", topic),
			zap.Error(err))
		return false
	}

	k.logger.Debug("Message published successfully",
		zap.String("topic", topic),
		zap.Int("bytes", len(payload)))
	return true
}

// Consume drains the topic until no message arrives within the idle timeout
func (k *Kafka) Consume(ctx context.Context, topic string, handler Handler) (int, error) {
	idle := k.cfg.Kafka.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}

	src := &kafkaSource{reader: k.getReader(topic), idle: idle}
	consumed, err := drain(ctx, src, handler, k.logger)
	if err != nil {
		k.discardReader(topic)
	}

	k.logger.Info("Consumed messages", zap.String("topic", topic), zap.Int("messages", consumed))
	return consumed, err
}

// Close closes every writer and reader
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for topic, writer := range k.writers {
		errs = append(errs, writer.Close())
		delete(k.writers, topic)
	}
	for topic, reader := range k.readers {
		errs = append(errs, reader.Close())
		delete(k.readers, topic)
	}
	return errors.Join(errs...)
}

type kafkaSource struct {
	reader *kafka.Reader
	idle   time.Duration
}

func (s *kafkaSource) Next(ctx context.Context) (delivery, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.idle)
	defer cancel()

	msg, err := s.reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &kafkaDelivery{ctx: ctx, reader: s.reader, msg: msg}, true, nil
}

type kafkaDelivery struct {
	ctx    context.Context
	reader *kafka.Reader
	msg    kafka.Message
}

func (d *kafkaDelivery) Body() []byte { return d.msg.Value }

func (d *kafkaDelivery) Ack() error {
	return d.reader.CommitMessages(d.ctx, d.msg)
}

// Nack leaves the offset uncommitted; the caller discards the reader
func (d *kafkaDelivery) Nack() error { return nil }

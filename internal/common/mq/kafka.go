package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeexec/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// KafkaConfig configures the event writer. Zero values take the defaults
// applied in NewKafkaProducer.
type KafkaConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks kafka.RequiredAcks
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafka.Compression
	WriteTimeout time.Duration
	// Async returns from Publish once the message is queued; delivery
	// failures are only logged.
	Async bool
}

// KafkaProducer writes messages with a kafka-go Writer.
type KafkaProducer struct {
	config KafkaConfig
	writer *kafka.Writer
}

// NewKafkaProducer builds the writer. Brokers are not contacted until the
// first message is flushed.
func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RequiredAcks == kafka.RequireNone {
		cfg.RequiredAcks = kafka.RequireOne
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: cfg.RequiredAcks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Compression:  cfg.Compression,
		Async:        cfg.Async,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(context.Background(), "kafka writer error", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
	if cfg.Async {
		w.Completion = logUndelivered
	}
	return &KafkaProducer{config: cfg, writer: w}, nil
}

func (k *KafkaProducer) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case message == nil:
		return errors.New("message is nil")
	case topic == "":
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, toKafkaMessage(topic, message))
}

// Close flushes queued messages.
func (k *KafkaProducer) Close() error {
	return k.writer.Close()
}

func logUndelivered(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		logger.Warn(context.Background(), "kafka message not delivered",
			zap.String("topic", m.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+2)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	headers = append(headers, kafka.Header{Key: headerTimestamp, Value: []byte(ts.Format(time.RFC3339Nano))})

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    ts,
	}
}

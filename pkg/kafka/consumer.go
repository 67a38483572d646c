package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// Message is a consumed record with its type header lifted out.
type Message struct {
	Key   []byte
	Value []byte
	Type  string
	Time  time.Time
}

type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads the analytics topic as part of a consumer group. Offsets
// are committed after the handler runs, whether or not it succeeded, so a
// record the handler rejects is logged and skipped.
type Consumer struct {
	reader  *kafka.Reader
	handle  MessageHandler
	logger  *slog.Logger
	backoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, handle MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.LastOffset,
		}),
		handle:  handle,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.Topic, "group", cfg.ConsumerGroup),
		backoff: time.Second,
	}
}

// Run consumes until ctx is cancelled, then closes the reader. Fetch errors
// are retried after a pause.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consuming")
	for {
		km, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
		if err != nil {
			c.logger.Error("fetch failed", "error", err, "retry_in", c.backoff)
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		log := c.logger.With("partition", km.Partition, "offset", km.Offset)
		if err := c.handle(ctx, fromKafka(km)); err != nil {
			log.Error("handler rejected message", "error", err)
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			log.Error("commit failed", "error", err)
		}
	}
}

func fromKafka(km kafka.Message) Message {
	msg := Message{Key: km.Key, Value: km.Value, Time: km.Time}
	for _, h := range km.Headers {
		if h.Key == TypeHeader {
			msg.Type = string(h.Value)
			break
		}
	}
	return msg
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("kafka: decoding message: %w", err)
	}
	return v, nil
}

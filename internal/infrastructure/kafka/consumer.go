package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transferindex/internal/infrastructure/telemetry"
	"transferindex/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRetryDelay     = 500 * time.Millisecond
	defaultHandleAttempts = 3
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageHandler processes one decoded transfer message.
type MessageHandler func(ctx context.Context, msg streaming.Message) error

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// RetryDelay is the pause after a failed fetch or handler call.
	RetryDelay time.Duration
	// HandleAttempts bounds handler calls per message before Run gives up.
	HandleAttempts int
}

type Consumer struct {
	reader     messageReader
	retryDelay time.Duration
	attempts   int
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = defaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, cfg.RetryDelay, cfg.HandleAttempts), nil
}

func newConsumer(reader messageReader, retryDelay time.Duration, attempts int) *Consumer {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if attempts <= 0 {
		attempts = defaultHandleAttempts
	}
	return &Consumer{reader: reader, retryDelay: retryDelay, attempts: attempts}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run fetches messages until ctx is done. Undecodable messages are logged
// and committed so they do not block the partition. A message whose handler
// keeps failing is never committed: Run retries it and then returns the
// error, so the group resumes from that offset on restart.
func (c *Consumer) Run(ctx context.Context, handle MessageHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Warn("kafka fetch error", "error", err)
			if err := c.pause(ctx); err != nil {
				return err
			}
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "topic", message.Topic, "offset", message.Offset, "error", err)
			c.commit(ctx, message)
			continue
		}

		if err := c.handleWithRetry(ctx, message, decoded, handle); err != nil {
			return err
		}
		c.commit(ctx, message)
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, message kafka.Message, decoded streaming.Message, handle MessageHandler) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = c.handle(ctx, message, decoded, handle); err == nil {
			return nil
		}
		slog.Error("handle message error", "tx", decoded.TxHash, "offset", message.Offset, "attempt", attempt, "error", err)
		if attempt == c.attempts {
			break
		}
		if err := c.pause(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("handle offset %d of partition %d: %w", message.Offset, message.Partition, err)
}

func (c *Consumer) handle(ctx context.Context, message kafka.Message, decoded streaming.Message, handle MessageHandler) error {
	messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
	messageCtx, span := otel.Tracer("transferindex/kafka").Start(messageCtx, "kafka.consume_transfer", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("tx.hash", decoded.TxHash),
		attribute.Int64("block.number", decoded.BlockNumber),
		attribute.Int("messaging.partition", message.Partition),
		attribute.Int64("messaging.offset", message.Offset),
	)
	if err := handle(messageCtx, decoded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Consumer) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryDelay):
		return nil
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		slog.Warn("kafka commit error", "offset", message.Offset, "error", err)
	}
}

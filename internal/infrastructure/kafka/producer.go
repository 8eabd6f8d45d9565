package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"transferindex/internal/domain"
	"transferindex/internal/infrastructure/telemetry"
	"transferindex/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopic = "native-transfers"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = defaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishTransfer writes one message keyed by tx hash so that repeated
// publications of a hash land on the same partition.
func (p *Producer) PublishTransfer(ctx context.Context, transfer domain.Transfer) error {
	ctx, span := otel.Tracer("transferindex/kafka").Start(ctx, "kafka.publish_transfer", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", p.topic),
		attribute.String("tx.hash", transfer.TxHash),
		attribute.Int64("block.number", transfer.BlockNumber),
	)

	msg := streaming.FromTransfer(transfer)
	if sc := span.SpanContext(); sc.HasTraceID() {
		msg.TraceID = sc.TraceID().String()
	}
	payload, err := streaming.Encode(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(transfer.TxHash),
		Value:   payload,
		Headers: headers,
		Time:    transfer.Timestamp,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"transferindex/internal/domain"
	"transferindex/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	require.Error(t, err)

	producer, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, defaultTopic, producer.topic)
}

func TestPublishTransfer(t *testing.T) {
	writer := &recordingWriter{}
	producer := &Producer{writer: writer, topic: "transfers"}
	transfer := domain.Transfer{
		TxHash:      "0xaa",
		BlockNumber: 10,
		Timestamp:   time.Unix(1710000000, 0).UTC(),
		FromAddress: "0x11",
		ToAddress:   "0x22",
		Value:       5,
	}

	require.NoError(t, producer.PublishTransfer(context.Background(), transfer))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "transfers", msg.Topic)
	assert.Equal(t, []byte("0xaa"), msg.Key)

	decoded, err := streaming.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypeTransfer, decoded.Type)
	assert.Equal(t, transfer, decoded.Transfer())

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestPublishTransferWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker unavailable")}
	producer := &Producer{writer: writer, topic: "transfers"}

	err := producer.PublishTransfer(context.Background(), domain.Transfer{TxHash: "0xaa"})
	require.ErrorIs(t, err, writer.err)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transferindex/internal/config"
	"transferindex/internal/infrastructure/kafka"
	"transferindex/internal/infrastructure/logging"
	"transferindex/internal/infrastructure/telemetry"
	"transferindex/internal/streaming"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// transfer-tail follows the transfer topic and logs each transfer. It needs
// KAFKA_BROKERS and reads KAFKA_TOPIC and KAFKA_GROUP_ID.
func main() {
	if err := run(); err != nil {
		slog.Error("transfer-tail stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadStreamFromEnv()
	if err != nil {
		return err
	}

	logCloser, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "transferindex-tail", version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	slog.Info("tailing transfers", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID, "version", version, "commit", commit, "build_time", buildTime)
	err = consumer.Run(ctx, func(ctx context.Context, msg streaming.Message) error {
		slog.InfoContext(ctx, "transfer",
			"tx", msg.TxHash,
			"block", msg.BlockNumber,
			"from", msg.From,
			"to", msg.To,
			"value", msg.Value,
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

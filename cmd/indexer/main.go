package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transferindex/internal/application"
	"transferindex/internal/config"
	"transferindex/internal/infrastructure/cache"
	"transferindex/internal/infrastructure/ethrpc"
	"transferindex/internal/infrastructure/kafka"
	"transferindex/internal/infrastructure/logging"
	"transferindex/internal/infrastructure/postgres"
	"transferindex/internal/infrastructure/telemetry"
	"transferindex/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("indexer stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
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

	slog.Info("starting transfer indexer", "version", version, "commit", commit, "build_time", buildTime)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "transferindex", version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return err
	}
	defer store.Close()

	rpcClient, err := ethrpc.NewClient(ethrpc.Config{
		URL:     ethrpc.InfuraURL(cfg.InfuraAPIKey),
		Timeout: cfg.RPCTimeout,
	})
	if err != nil {
		return err
	}

	accounts, err := cache.NewEOAClassifier(rpcClient, cache.EOAConfig{
		RedisAddr: cfg.RedisAddr,
		TTL:       cfg.EOACacheTTL,
	})
	if err != nil {
		slog.Warn("redis cache disabled, using in-process cache", "addr", cfg.RedisAddr, "error", err)
		accounts, err = cache.NewEOAClassifier(rpcClient, cache.EOAConfig{TTL: cfg.EOACacheTTL})
		if err != nil {
			return err
		}
	}
	defer accounts.Close()

	var publisher application.TransferPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
		slog.Info("publishing transfers", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	metrics := httpapi.NewMetrics()
	var serve func(context.Context) error
	if cfg.HTTPAddr != "" {
		server, err := httpapi.NewServer(store, metrics, httpapi.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
		})
		if err != nil {
			return err
		}
		serve = func(ctx context.Context) error {
			return server.ListenAndServe(ctx, cfg.HTTPAddr)
		}
	}

	indexer, err := application.NewIndexer(rpcClient, accounts, store, publisher, metrics, application.IndexerConfig{
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}

	slog.Info("indexer started", "poll_interval", cfg.PollInterval)
	if err := runUntilDone(ctx, indexer.Run, serve); err != nil {
		return err
	}
	slog.Info("indexer shut down")
	return nil
}

// runUntilDone runs loop and, when set, serve alongside it. A serve failure
// stops loop and is returned; cancellation of ctx is a clean exit.
func runUntilDone(ctx context.Context, loop, serve func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	if serve != nil {
		go func() {
			if err := serve(ctx); err != nil {
				serveErr <- err
				cancel()
			}
		}()
	}

	if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

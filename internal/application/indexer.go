package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transferindex/internal/domain"
	"transferindex/internal/hexcodec"
	"transferindex/internal/infrastructure/ethrpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BlockSource interface {
	FetchLatestBlock(ctx context.Context) (*ethrpc.Block, error)
}

// AccountClassifier reports whether an address has no deployed code.
type AccountClassifier interface {
	IsEOA(ctx context.Context, address string) (bool, error)
}

type TransferStore interface {
	InsertTransfer(ctx context.Context, transfer domain.Transfer) (bool, error)
}

type TransferPublisher interface {
	PublishTransfer(ctx context.Context, transfer domain.Transfer) error
}

type IndexerObserver interface {
	OnLatestBlock(block int64)
	OnTick(result TickResult)
	OnTickError(err error)
}

type IndexerConfig struct {
	PollInterval time.Duration
}

// TickResult counts what a single tick did with the latest block.
// Candidates are transactions whose endpoints are both EOAs; Skipped and
// Failed are subsets of Candidates.
type TickResult struct {
	BlockNumber  int64
	Transactions int
	Candidates   int
	Inserted     int
	Duplicates   int
	Skipped      int
	Failed       int
	Duration     time.Duration
}

type Indexer struct {
	source    BlockSource
	accounts  AccountClassifier
	store     TransferStore
	publisher TransferPublisher
	observer  IndexerObserver
	cfg       IndexerConfig
}

const defaultPollInterval = 5 * time.Second

var ErrMissingHash = errors.New("transaction hash is empty")

func NewIndexer(source BlockSource, accounts AccountClassifier, store TransferStore, publisher TransferPublisher, observer IndexerObserver, cfg IndexerConfig) (*Indexer, error) {
	if source == nil || accounts == nil || store == nil {
		return nil, errors.New("indexer dependencies must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Indexer{
		source:    source,
		accounts:  accounts,
		store:     store,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg,
	}, nil
}

// Run ticks until ctx is cancelled. Tick errors are logged and never stop
// the loop.
func (i *Indexer) Run(ctx context.Context) error {
	for {
		result, err := i.Tick(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Error("tick failed", "error", err)
			if i.observer != nil {
				i.observer.OnTickError(err)
			}
		} else {
			slog.Info("tick complete",
				"block", result.BlockNumber,
				"transactions", result.Transactions,
				"candidates", result.Candidates,
				"inserted", result.Inserted,
				"duplicates", result.Duplicates,
				"skipped", result.Skipped,
				"failed", result.Failed,
				"duration", result.Duration,
			)
			if i.observer != nil {
				i.observer.OnTick(result)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.cfg.PollInterval):
		}
	}
}

// Tick fetches the latest block and stores every EOA-to-EOA transaction in
// it. RPC failures abort the tick; a transaction that cannot be decoded or
// stored is counted and skipped.
func (i *Indexer) Tick(ctx context.Context) (TickResult, error) {
	ctx, span := otel.Tracer("transferindex/indexer").Start(ctx, "indexer.tick")
	defer span.End()

	started := time.Now()
	var result TickResult

	block, err := i.source.FetchLatestBlock(ctx)
	if err != nil {
		return result, tickErr(span, fmt.Errorf("fetch latest block: %w", err))
	}
	if block.Timestamp == "" {
		return result, tickErr(span, &ethrpc.ProtocolError{
			Method: "eth_getBlockByNumber",
			Err:    errors.New("block timestamp is missing"),
		})
	}
	seconds, err := hexcodec.DecodeNonNegative(block.Timestamp)
	if err != nil {
		return result, tickErr(span, fmt.Errorf("block timestamp: %w", err))
	}
	timestamp := time.Unix(seconds, 0).UTC()

	blockNumber := int64(-1)
	if block.Number != "" {
		if number, err := hexcodec.DecodeNonNegative(block.Number); err == nil {
			blockNumber = number
		}
	}
	result.BlockNumber = blockNumber
	result.Transactions = len(block.Transactions)
	if i.observer != nil && blockNumber >= 0 {
		i.observer.OnLatestBlock(blockNumber)
	}
	span.SetAttributes(
		attribute.Int64("block.number", blockNumber),
		attribute.Int("block.transactions", result.Transactions),
	)

	for _, tx := range block.Transactions {
		if tx.To == "" || tx.From == "" {
			continue
		}
		eligible, err := i.bothEOA(ctx, tx.To, tx.From)
		if err != nil {
			return result, tickErr(span, fmt.Errorf("classify %s: %w", tx.Hash, err))
		}
		if !eligible {
			continue
		}
		result.Candidates++

		transfer, err := buildTransfer(tx, timestamp, blockNumber)
		if err != nil {
			result.Skipped++
			slog.Warn("skipping undecodable transaction", "tx", tx.Hash, "error", err)
			continue
		}

		inserted, err := i.store.InsertTransfer(ctx, transfer)
		if err != nil {
			result.Failed++
			slog.Error("store transfer failed", "tx", transfer.TxHash, "error", err)
			continue
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Inserted++
		i.publish(ctx, transfer)
	}

	result.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("transfers.inserted", result.Inserted),
		attribute.Int("transfers.duplicates", result.Duplicates),
	)
	return result, nil
}

// bothEOA checks the recipient first and only probes the sender when the
// recipient qualifies.
func (i *Indexer) bothEOA(ctx context.Context, to, from string) (bool, error) {
	eoa, err := i.accounts.IsEOA(ctx, to)
	if err != nil || !eoa {
		return false, err
	}
	return i.accounts.IsEOA(ctx, from)
}

func (i *Indexer) publish(ctx context.Context, transfer domain.Transfer) {
	if i.publisher == nil {
		return
	}
	if err := i.publisher.PublishTransfer(ctx, transfer); err != nil {
		slog.Warn("publish transfer failed", "tx", transfer.TxHash, "error", err)
	}
}

func buildTransfer(tx ethrpc.Transaction, timestamp time.Time, blockNumber int64) (domain.Transfer, error) {
	if tx.Hash == "" {
		return domain.Transfer{}, ErrMissingHash
	}

	number := blockNumber
	if tx.BlockNumber != "" || blockNumber < 0 {
		decoded, err := hexcodec.DecodeNonNegative(tx.BlockNumber)
		if err != nil {
			return domain.Transfer{}, fmt.Errorf("blockNumber: %w", err)
		}
		number = decoded
	}

	value, err := decodeQuantity("value", tx.Value)
	if err != nil {
		return domain.Transfer{}, err
	}
	gasPrice, err := decodeQuantity("gasPrice", tx.GasPrice)
	if err != nil {
		return domain.Transfer{}, err
	}
	gas, err := decodeQuantity("gas", tx.Gas)
	if err != nil {
		return domain.Transfer{}, err
	}
	maxFee, err := decodeQuantity("maxFeePerGas", tx.MaxFeePerGas)
	if err != nil {
		return domain.Transfer{}, err
	}
	maxPriorityFee, err := decodeQuantity("maxPriorityFeePerGas", tx.MaxPriorityFeePerGas)
	if err != nil {
		return domain.Transfer{}, err
	}

	return domain.Transfer{
		TxHash:               strings.ToLower(tx.Hash),
		BlockNumber:          number,
		Timestamp:            timestamp,
		FromAddress:          strings.ToLower(tx.From),
		ToAddress:            strings.ToLower(tx.To),
		Value:                value,
		GasPrice:             &gasPrice,
		Gas:                  &gas,
		MaxFeePerGas:         &maxFee,
		MaxPriorityFeePerGas: &maxPriorityFee,
	}, nil
}

// decodeQuantity treats an absent field as zero.
func decodeQuantity(field, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := hexcodec.DecodeNonNegative(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return value, nil
}

func tickErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"transferindex/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TableName is the only table the indexer owns.
	TableName = "native_currency_transfers"

	defaultMaxConns = 5
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS native_currency_transfers (
	tx_hash TEXT NOT NULL PRIMARY KEY,
	block_number BIGINT NOT NULL CHECK (block_number >= 0),
	timestamp TIMESTAMPTZ NOT NULL,
	from_address TEXT NOT NULL,
	to_address TEXT NOT NULL,
	value BIGINT NOT NULL CHECK (value >= 0),
	gas_price BIGINT NULL CHECK (gas_price >= 0),
	gas BIGINT NULL CHECK (gas >= 0),
	max_fee_per_gas BIGINT NULL CHECK (max_fee_per_gas >= 0),
	max_priority_fee_per_gas BIGINT NULL CHECK (max_priority_fee_per_gas >= 0)
)`

var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS native_currency_transfers_from_idx ON native_currency_transfers (from_address)`,
	`CREATE INDEX IF NOT EXISTS native_currency_transfers_to_idx ON native_currency_transfers (to_address)`,
}

const selectColumns = `SELECT tx_hash, block_number, timestamp, from_address, to_address, value,
	gas_price, gas, max_fee_per_gas, max_priority_fee_per_gas
	FROM native_currency_transfers`

type Options struct {
	MaxConns int32
}

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to url, verifies the connection and provisions the schema.
func Open(ctx context.Context, url string, opts Options) (*Repository, error) {
	if strings.TrimSpace(url) == "" {
		return nil, wrap("open", errors.New("database url is required"))
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, wrap("open", err)
	}
	cfg.MaxConns = opts.MaxConns
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrap("open", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, wrap("ping", err)
	}

	repo := &Repository{pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema runs the idempotent DDL. It never alters an existing table.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, span := startDBSpan(ctx, "postgres.EnsureSchema")
	defer span.End()

	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return recordErr(span, wrap("create table", err))
	}
	for _, stmt := range indexDDL {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return recordErr(span, wrap("create index", err))
		}
	}
	return nil
}

// InsertTransfer stores t unless a row with the same tx_hash exists. The
// boolean reports whether a new row was written; a duplicate is not an error.
func (r *Repository) InsertTransfer(ctx context.Context, t domain.Transfer) (bool, error) {
	ctx, span := startDBSpan(ctx, "postgres.InsertTransfer",
		attribute.String("tx.hash", t.TxHash),
		attribute.Int64("block.number", t.BlockNumber),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `INSERT INTO native_currency_transfers (
		tx_hash, block_number, timestamp, from_address, to_address, value,
		gas_price, gas, max_fee_per_gas, max_priority_fee_per_gas
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (tx_hash) DO NOTHING`,
		strings.ToLower(t.TxHash),
		t.BlockNumber,
		t.Timestamp.UTC(),
		strings.ToLower(t.FromAddress),
		strings.ToLower(t.ToAddress),
		t.Value,
		t.GasPrice,
		t.Gas,
		t.MaxFeePerGas,
		t.MaxPriorityFeePerGas,
	)
	if err != nil {
		return false, recordErr(span, wrap("insert transfer", err))
	}
	inserted := tag.RowsAffected() == 1
	span.SetAttributes(attribute.Bool("db.inserted", inserted))
	return inserted, nil
}

// SelectAll returns every stored transfer in no particular order.
func (r *Repository) SelectAll(ctx context.Context) ([]domain.Transfer, error) {
	return r.query(ctx, "select all", selectColumns)
}

func (r *Repository) SelectFromAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	return r.query(ctx, "select from address", selectColumns+` WHERE from_address = $1`, strings.ToLower(address))
}

func (r *Repository) SelectToAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	return r.query(ctx, "select to address", selectColumns+` WHERE to_address = $1`, strings.ToLower(address))
}

// SelectByAddress returns transfers sent or received by address, oldest block first.
func (r *Repository) SelectByAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	return r.query(ctx, "select by address",
		selectColumns+` WHERE from_address = $1 OR to_address = $1 ORDER BY block_number ASC, tx_hash ASC`,
		strings.ToLower(address),
	)
}

// MaxBlock returns the highest stored block number; ok is false on an empty table.
func (r *Repository) MaxBlock(ctx context.Context) (int64, bool, error) {
	ctx, span := startDBSpan(ctx, "postgres.MaxBlock")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max *int64
	if err := r.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM native_currency_transfers`).Scan(&max); err != nil {
		return 0, false, recordErr(span, wrap("max block", err))
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

// Reset drops the table. Open must be called again to recreate it.
func (r *Repository) Reset(ctx context.Context) error {
	ctx, span := startDBSpan(ctx, "postgres.Reset")
	defer span.End()

	if _, err := r.pool.Exec(ctx, `DROP TABLE IF EXISTS native_currency_transfers`); err != nil {
		return recordErr(span, wrap("reset", err))
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return wrap("ping", r.pool.Ping(ctx))
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) query(ctx context.Context, op, sql string, args ...any) ([]domain.Transfer, error) {
	ctx, span := startDBSpan(ctx, "postgres.Query", attribute.String("db.operation", op))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, recordErr(span, wrap(op, err))
	}
	transfers, err := pgx.CollectRows(rows, scanTransfer)
	if err != nil {
		return nil, recordErr(span, wrap(op, err))
	}
	span.SetAttributes(attribute.Int("db.rows", len(transfers)))
	return transfers, nil
}

func scanTransfer(row pgx.CollectableRow) (domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.TxHash,
		&t.BlockNumber,
		&t.Timestamp,
		&t.FromAddress,
		&t.ToAddress,
		&t.Value,
		&t.GasPrice,
		&t.Gas,
		&t.MaxFeePerGas,
		&t.MaxPriorityFeePerGas,
	)
	t.Timestamp = t.Timestamp.UTC()
	return t, err
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "postgresql"))
	return otel.Tracer("transferindex/postgres").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

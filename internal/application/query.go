package application

import (
	"context"
	"errors"
	"strings"

	"transferindex/internal/domain"
)

type Direction string

const (
	DirectionAny  Direction = ""
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

type TransferQueryFilter struct {
	Address   string
	Direction Direction
}

type TransferReader interface {
	SelectAll(ctx context.Context) ([]domain.Transfer, error)
	SelectFromAddress(ctx context.Context, address string) ([]domain.Transfer, error)
	SelectToAddress(ctx context.Context, address string) ([]domain.Transfer, error)
	SelectByAddress(ctx context.Context, address string) ([]domain.Transfer, error)
	MaxBlock(ctx context.Context) (int64, bool, error)
}

var ErrAddressRequired = errors.New("address is required for a directional query")

type TransferQueries struct {
	reader TransferReader
}

func NewTransferQueries(reader TransferReader) *TransferQueries {
	return &TransferQueries{reader: reader}
}

func (q *TransferQueries) Transfers(ctx context.Context, filter TransferQueryFilter) ([]domain.Transfer, error) {
	address := strings.ToLower(strings.TrimSpace(filter.Address))
	switch filter.Direction {
	case DirectionFrom:
		if address == "" {
			return nil, ErrAddressRequired
		}
		return q.reader.SelectFromAddress(ctx, address)
	case DirectionTo:
		if address == "" {
			return nil, ErrAddressRequired
		}
		return q.reader.SelectToAddress(ctx, address)
	case DirectionAny:
		if address == "" {
			return q.reader.SelectAll(ctx)
		}
		return q.reader.SelectByAddress(ctx, address)
	default:
		return nil, errors.New("unknown direction " + string(filter.Direction))
	}
}

func (q *TransferQueries) MaxBlock(ctx context.Context) (int64, bool, error) {
	return q.reader.MaxBlock(ctx)
}

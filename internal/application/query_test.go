package application

import (
	"context"
	"testing"

	"transferindex/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	calls []string
}

func (s *stubReader) SelectAll(ctx context.Context) ([]domain.Transfer, error) {
	s.calls = append(s.calls, "all")
	return nil, nil
}

func (s *stubReader) SelectFromAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	s.calls = append(s.calls, "from:"+address)
	return nil, nil
}

func (s *stubReader) SelectToAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	s.calls = append(s.calls, "to:"+address)
	return nil, nil
}

func (s *stubReader) SelectByAddress(ctx context.Context, address string) ([]domain.Transfer, error) {
	s.calls = append(s.calls, "any:"+address)
	return nil, nil
}

func (s *stubReader) MaxBlock(ctx context.Context) (int64, bool, error) {
	return 42, true, nil
}

func TestTransferQueriesDispatch(t *testing.T) {
	reader := &stubReader{}
	queries := NewTransferQueries(reader)
	ctx := context.Background()

	_, err := queries.Transfers(ctx, TransferQueryFilter{})
	require.NoError(t, err)
	_, err = queries.Transfers(ctx, TransferQueryFilter{Address: " 0xABC ", Direction: DirectionFrom})
	require.NoError(t, err)
	_, err = queries.Transfers(ctx, TransferQueryFilter{Address: "0xabc", Direction: DirectionTo})
	require.NoError(t, err)
	_, err = queries.Transfers(ctx, TransferQueryFilter{Address: "0xAbC"})
	require.NoError(t, err)

	assert.Equal(t, []string{"all", "from:0xabc", "to:0xabc", "any:0xabc"}, reader.calls)

	block, ok, err := queries.MaxBlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), block)
}

func TestTransferQueriesRequireAddress(t *testing.T) {
	queries := NewTransferQueries(&stubReader{})

	_, err := queries.Transfers(context.Background(), TransferQueryFilter{Direction: DirectionFrom})
	assert.ErrorIs(t, err, ErrAddressRequired)
	_, err = queries.Transfers(context.Background(), TransferQueryFilter{Direction: "sideways"})
	assert.Error(t, err)
}

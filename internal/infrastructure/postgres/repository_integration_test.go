//go:build integration

package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"transferindex/internal/domain"
	"transferindex/internal/infrastructure/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("TEST_DATABASE_URL/DATABASE_URL is not set")
	}
	return url
}

func openTestRepo(t *testing.T) *postgres.Repository {
	t.Helper()
	url := testDatabaseURL(t)

	ctx := context.Background()
	repo, err := postgres.Open(ctx, url, postgres.Options{})
	require.NoError(t, err)
	require.NoError(t, repo.Reset(ctx))
	repo.Close()

	repo, err = postgres.Open(ctx, url, postgres.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Reset(context.Background())
		repo.Close()
	})
	return repo
}

func ptr(v int64) *int64 { return &v }

func sampleTransfer(hash, from, to string, block int64) domain.Transfer {
	return domain.Transfer{
		TxHash:      hash,
		BlockNumber: block,
		Timestamp:   time.Unix(1710000000+block, 0).UTC(),
		FromAddress: from,
		ToAddress:   to,
		Value:       100000000000000000,
		GasPrice:    ptr(1000000000),
		Gas:         ptr(21000),
	}
}

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

func hash(c string) string { return "0x" + strings.Repeat(c, 64) }

func TestInsertTransferIsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	transfer := sampleTransfer(hash("a"), addrA, addrB, 100)

	inserted, err := repo.InsertTransfer(ctx, transfer)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertTransfer(ctx, transfer)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := repo.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, transfer.TxHash, got.TxHash)
	assert.Equal(t, transfer.BlockNumber, got.BlockNumber)
	assert.True(t, transfer.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, transfer.Value, got.Value)
	require.NotNil(t, got.GasPrice)
	assert.Equal(t, int64(1000000000), *got.GasPrice)
	require.NotNil(t, got.Gas)
	assert.Equal(t, int64(21000), *got.Gas)
	assert.Nil(t, got.MaxFeePerGas)
	assert.Nil(t, got.MaxPriorityFeePerGas)
}

func TestPrimaryKeyUniqueness(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	hashes := []string{hash("a"), hash("b"), hash("a"), hash("c"), hash("b"), hash("a")}
	for i, h := range hashes {
		_, err := repo.InsertTransfer(ctx, sampleTransfer(h, addrA, addrB, int64(i)))
		require.NoError(t, err)
	}

	rows, err := repo.SelectAll(ctx)
	require.NoError(t, err)
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[row.TxHash] = struct{}{}
	}
	assert.Len(t, rows, 3)
	assert.Len(t, seen, len(rows))
}

func TestSelectByDirection(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, transfer := range []domain.Transfer{
		sampleTransfer(hash("1"), addrA, addrB, 10),
		sampleTransfer(hash("2"), addrB, addrC, 11),
		sampleTransfer(hash("3"), addrA, addrC, 12),
	} {
		_, err := repo.InsertTransfer(ctx, transfer)
		require.NoError(t, err)
	}

	fromA, err := repo.SelectFromAddress(ctx, addrA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{hash("1"), hash("3")}, hashesOf(fromA))

	toC, err := repo.SelectToAddress(ctx, addrC)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{hash("2"), hash("3")}, hashesOf(toC))

	toA, err := repo.SelectToAddress(ctx, addrA)
	require.NoError(t, err)
	assert.Empty(t, toA)

	fromUpper, err := repo.SelectFromAddress(ctx, strings.ToUpper(addrB[:2])+addrB[2:])
	require.NoError(t, err)
	assert.Equal(t, []string{hash("2")}, hashesOf(fromUpper))

	historyB, err := repo.SelectByAddress(ctx, addrB)
	require.NoError(t, err)
	assert.Equal(t, []string{hash("1"), hash("2")}, hashesOf(historyB))
}

func TestMaxBlock(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.MaxBlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for i, block := range []int64{7, 42, 19} {
		_, err := repo.InsertTransfer(ctx, sampleTransfer(hash(string(rune('a'+i))), addrA, addrB, block))
		require.NoError(t, err)
	}

	max, ok, err := repo.MaxBlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), max)
}

func TestResetThenReopenRecreatesSchema(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertTransfer(ctx, sampleTransfer(hash("a"), addrA, addrB, 1))
	require.NoError(t, err)
	require.NoError(t, repo.Reset(ctx))

	_, err = repo.SelectAll(ctx)
	var storageErr *postgres.StorageError
	require.ErrorAs(t, err, &storageErr)

	reopened, err := postgres.Open(ctx, testDatabaseURL(t), postgres.Options{})
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.SelectAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	inserted, err := reopened.InsertTransfer(ctx, sampleTransfer(hash("b"), addrA, addrB, 2))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestNegativeValueRejected(t *testing.T) {
	repo := openTestRepo(t)
	transfer := sampleTransfer(hash("d"), addrA, addrB, 1)
	transfer.Value = -1

	_, err := repo.InsertTransfer(context.Background(), transfer)
	var storageErr *postgres.StorageError
	require.ErrorAs(t, err, &storageErr)
}

func hashesOf(transfers []domain.Transfer) []string {
	out := make([]string, 0, len(transfers))
	for _, transfer := range transfers {
		out = append(out, transfer.TxHash)
	}
	return out
}

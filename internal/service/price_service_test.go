package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

func TestSnapshotFeedWritesThroughCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakePriceCache{}
	feed := &fakeFeed{quote: domain.PriceQuote{
		Price:     115_000_000,
		Decimals:  8,
		Round:     42,
		UpdatedAt: time.Now().UTC(),
	}}
	svc := NewPriceService(feed, cache, newFakeBus(), time.Hour, 8, logger)

	quote, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(115_000_000), quote.Price)

	cached, err := cache.GetQuote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quote, cached)
}

func TestSnapshotFallsBackToFreshCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakePriceCache{}
	require.NoError(t, cache.SetQuote(context.Background(), domain.PriceQuote{
		Price:     114_000_000,
		Decimals:  8,
		UpdatedAt: time.Now().UTC(),
	}))
	feed := &fakeFeed{err: domain.ErrOracleUnavailable}
	svc := NewPriceService(feed, cache, newFakeBus(), time.Hour, 8, logger)

	quote, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(114_000_000), quote.Price)
}

func TestSnapshotRejectsStaleCacheOnFeedFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakePriceCache{}
	require.NoError(t, cache.SetQuote(context.Background(), domain.PriceQuote{
		Price:     114_000_000,
		Decimals:  8,
		UpdatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}))
	feed := &fakeFeed{err: domain.ErrOracleUnavailable}
	svc := NewPriceService(feed, cache, newFakeBus(), time.Hour, 8, logger)

	_, err := svc.Snapshot(context.Background())
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestManualModeSnapshot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakePriceCache{}
	svc := NewPriceService(nil, cache, newFakeBus(), time.Hour, 8, logger)
	ctx := context.Background()

	// No quote set yet.
	_, err := svc.Snapshot(ctx)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)

	set, err := svc.SetManualQuote(ctx, 116_000_000, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(8), set.Decimals)

	quote, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(116_000_000), quote.Price)
	assert.Equal(t, uint64(7), quote.Round)
}

func TestManualModeStaleQuote(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakePriceCache{}
	require.NoError(t, cache.SetQuote(context.Background(), domain.PriceQuote{
		Price:     116_000_000,
		Decimals:  8,
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}))
	svc := NewPriceService(nil, cache, newFakeBus(), time.Minute, 8, logger)

	_, err := svc.Snapshot(context.Background())
	require.ErrorIs(t, err, domain.ErrStalePrice)
}

package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

func newPositionHarness() (*PositionService, *fakePositionStore, *fakePriceCache) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakePositionStore()
	cache := &fakePriceCache{}
	bus := newFakeBus()
	prices := NewPriceService(nil, cache, bus, 0, 8, logger)
	svc := NewPositionService(store, prices, auth.NewGuard(testOwner), bus, &fakeAudit{}, 8, logger)
	return svc, store, cache
}

func validMint() MintRequest {
	return MintRequest{
		Owner:        "alice",
		MetadataURI:  "ipfs://QmOption",
		LowerStrike:  110_000_000,
		HigherStrike: 120_000_000,
		Premium:      1_000_000,
		Multiplier:   2,
		Expiry:       time.Now().UTC().Add(24 * time.Hour),
	}
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	svc, _, _ := newPositionHarness()
	ctx := context.Background()

	first, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)
	second, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)

	assert.Equal(t, first.ID+1, second.ID)
	assert.Equal(t, int32(8), first.PriceDecimals)
	assert.False(t, first.Settled)
}

func TestMintRequiresOwner(t *testing.T) {
	svc, _, _ := newPositionHarness()

	_, err := svc.Mint(context.Background(), "mallory", validMint())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMintValidation(t *testing.T) {
	svc, _, _ := newPositionHarness()
	ctx := context.Background()

	req := validMint()
	req.LowerStrike, req.HigherStrike = req.HigherStrike, req.LowerStrike
	_, err := svc.Mint(ctx, testOwner, req)
	require.ErrorIs(t, err, domain.ErrInvalidStrikeOrder)

	req = validMint()
	req.Multiplier = 0
	_, err = svc.Mint(ctx, testOwner, req)
	require.ErrorIs(t, err, domain.ErrInvalidMultiplier)

	req = validMint()
	req.Expiry = time.Now().UTC().Add(-time.Minute)
	_, err = svc.Mint(ctx, testOwner, req)
	require.ErrorIs(t, err, domain.ErrExpiryInPast)
}

func TestTransferByHolder(t *testing.T) {
	svc, store, _ := newPositionHarness()
	ctx := context.Background()

	pos, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)

	require.NoError(t, svc.Transfer(ctx, "alice", pos.ID, "bob"))
	got, _ := store.GetByID(ctx, pos.ID)
	assert.Equal(t, "bob", got.Owner)

	// Neither the old holder nor a stranger can transfer now.
	err = svc.Transfer(ctx, "alice", pos.ID, "carol")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTransferUnknownPosition(t *testing.T) {
	svc, _, _ := newPositionHarness()

	err := svc.Transfer(context.Background(), testOwner, 999, "bob")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCalculatePayoffLive(t *testing.T) {
	svc, _, cache := newPositionHarness()
	ctx := context.Background()

	pos, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)

	require.NoError(t, cache.SetQuote(ctx, domain.PriceQuote{
		Price:     115_000_000,
		Decimals:  8,
		UpdatedAt: time.Now().UTC(),
	}))

	quote, err := svc.CalculatePayoff(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), quote.Amount) // (1.15 - 1.10) * 2
	assert.False(t, quote.Settled)
}

func TestCalculatePayoffSettledUsesRecordedAmount(t *testing.T) {
	svc, store, cache := newPositionHarness()
	ctx := context.Background()

	pos, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)
	require.NoError(t, store.MarkSettled(ctx, pos.ID, 7_777, time.Now().UTC()))

	// A wildly different live price must not change the answer.
	require.NoError(t, cache.SetQuote(ctx, domain.PriceQuote{
		Price:     200_000_000,
		Decimals:  8,
		UpdatedAt: time.Now().UTC(),
	}))

	quote, err := svc.CalculatePayoff(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, quote.Settled)
	assert.Equal(t, int64(7_777), quote.Amount)
}

func TestCalculatePayoffNoQuote(t *testing.T) {
	svc, _, _ := newPositionHarness()
	ctx := context.Background()

	pos, err := svc.Mint(ctx, testOwner, validMint())
	require.NoError(t, err)

	_, err = svc.CalculatePayoff(ctx, pos.ID)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

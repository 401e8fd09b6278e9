package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

type settlementHarness struct {
	svc       *SettlementService
	positions *fakePositionStore
	records   *fakeSettlementStore
	custody   *fakeCustodyStore
	ledger    *fakeTokenLedger
	cache     *fakePriceCache
	locks     *fakeLockManager
	bus       *fakeBus
	audit     *fakeAudit
}

func newSettlementHarness(t *testing.T, custodyBalance int64) *settlementHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &settlementHarness{
		positions: newFakePositionStore(),
		records:   &fakeSettlementStore{},
		custody:   &fakeCustodyStore{},
		ledger:    newFakeTokenLedger(),
		cache:     &fakePriceCache{},
		locks:     &fakeLockManager{},
		bus:       newFakeBus(),
		audit:     &fakeAudit{},
	}
	h.ledger.balances["custody"] = custodyBalance

	prices := NewPriceService(nil, h.cache, h.bus, 0, 8, logger)
	h.svc = NewSettlementService(
		h.positions, h.records, h.custody, h.ledger, prices,
		h.locks, h.bus, h.audit, nil,
		"custody", 100, 2*time.Minute, logger,
	)
	return h
}

func (h *settlementHarness) setPrice(t *testing.T, price int64) {
	t.Helper()
	require.NoError(t, h.cache.SetQuote(context.Background(), domain.PriceQuote{
		Price:     price,
		Decimals:  8,
		Round:     1,
		UpdatedAt: time.Now().UTC(),
	}))
}

func (h *settlementHarness) mintExpired(t *testing.T, owner string, lower, higher, multiplier int64) int64 {
	t.Helper()
	id, err := h.positions.Mint(context.Background(), domain.Position{
		Owner:         owner,
		LowerStrike:   lower,
		HigherStrike:  higher,
		Multiplier:    multiplier,
		PriceDecimals: 8,
		Expiry:        time.Now().UTC().Add(-time.Hour),
		MintedAt:      time.Now().UTC().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	return id
}

func TestExecuteSweepPaysDuePositions(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	// Strikes at 1.10 / 1.20 with 8 decimals; price 1.15 pays 0.05 per unit.
	inRange := h.mintExpired(t, "alice", 110_000_000, 120_000_000, 2)
	below := h.mintExpired(t, "bob", 120_000_000, 130_000_000, 1)
	above := h.mintExpired(t, "carol", 100_000_000, 105_000_000, 3)
	h.setPrice(t, 115_000_000)

	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Settled)
	assert.True(t, res.Done)
	assert.Equal(t, int64(5_000_000*2+0+5_000_000*3), res.TotalPaid)

	alice, _ := h.positions.GetByID(ctx, inRange)
	require.True(t, alice.Settled)
	require.NotNil(t, alice.PayoutAmount)
	assert.Equal(t, int64(10_000_000), *alice.PayoutAmount)
	assert.Equal(t, int64(10_000_000), h.ledger.balances["alice"])

	// At or below the lower strike pays nothing but still settles.
	bobPos, _ := h.positions.GetByID(ctx, below)
	require.True(t, bobPos.Settled)
	assert.Equal(t, int64(0), *bobPos.PayoutAmount)
	assert.Zero(t, h.ledger.balances["bob"])

	// Above the higher strike is capped at (higher - lower) * multiplier.
	carolPos, _ := h.positions.GetByID(ctx, above)
	assert.Equal(t, int64(15_000_000), *carolPos.PayoutAmount)
	assert.Equal(t, int64(15_000_000), h.ledger.balances["carol"])

	recent, err := h.records.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestExecuteSweepIsIdempotent(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	h.setPrice(t, 115_000_000)

	first, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Settled)

	second, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, second.Settled)
	assert.Zero(t, second.TotalPaid)
	assert.True(t, second.Done)

	// Exactly one transfer ever happened.
	assert.Equal(t, 1, h.ledger.transfers)
}

func TestExecuteSweepSkipsUnexpired(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	future, err := h.positions.Mint(ctx, domain.Position{
		Owner:         "bob",
		LowerStrike:   110_000_000,
		HigherStrike:  120_000_000,
		Multiplier:    1,
		PriceDecimals: 8,
		Expiry:        time.Now().UTC().Add(time.Hour),
		MintedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	h.setPrice(t, 115_000_000)

	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)

	pos, _ := h.positions.GetByID(ctx, future)
	assert.False(t, pos.Settled)
}

func TestExecuteSweepCursorPagination(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1))
	}
	h.setPrice(t, 115_000_000)

	first, err := h.svc.ExecuteSweep(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Settled)
	assert.Equal(t, ids[1], first.NextCursor)
	assert.False(t, first.Done)

	second, err := h.svc.ExecuteSweep(ctx, first.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Settled)
	assert.Equal(t, ids[3], second.NextCursor)
	assert.False(t, second.Done)

	third, err := h.svc.ExecuteSweep(ctx, second.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Settled)
	assert.True(t, third.Done)
}

func TestExecuteSweepAbortsWhenUnderfunded(t *testing.T) {
	// Custody holds less than the batch total.
	h := newSettlementHarness(t, 5_000_000)
	ctx := context.Background()

	a := h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	b := h.mintExpired(t, "bob", 110_000_000, 120_000_000, 1)
	h.setPrice(t, 115_000_000) // each owes 5_000_000, total 10_000_000

	_, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing was marked or transferred.
	for _, id := range []int64{a, b} {
		pos, _ := h.positions.GetByID(ctx, id)
		assert.False(t, pos.Settled)
	}
	assert.Zero(t, h.ledger.transfers)
	assert.Equal(t, int64(5_000_000), h.ledger.balances["custody"])
}

func TestExecuteSweepRevertsMarkWhenTransferFails(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	id := h.mintExpired(t, "alice", 110_000_000, 120_000_000, 2)
	h.setPrice(t, 115_000_000)

	h.ledger.failNext = errors.New("tx reverted")
	_, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.Error(t, err)

	// The failed payout must not leave the position settled and unpaid.
	pos, _ := h.positions.GetByID(ctx, id)
	assert.False(t, pos.Settled)
	assert.Nil(t, pos.PayoutAmount)
	assert.Zero(t, h.ledger.balances["alice"])
	assert.Empty(t, h.records.records)

	// With the ledger healthy again the next pass pays in full.
	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, int64(10_000_000), res.TotalPaid)
	assert.Equal(t, int64(10_000_000), h.ledger.balances["alice"])

	pos, _ = h.positions.GetByID(ctx, id)
	assert.True(t, pos.Settled)
}

func TestExecuteSweepKeepsMarkWhenTransferInterrupted(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	id := h.mintExpired(t, "alice", 110_000_000, 120_000_000, 2)
	h.setPrice(t, 115_000_000)

	// A cancellation mid-wait leaves the transfer outcome unknown; the mark
	// must stay so a retry cannot pay the position twice.
	h.ledger.failNext = fmt.Errorf("wait for tx: %w", context.Canceled)
	_, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.ErrorIs(t, err, context.Canceled)

	pos, _ := h.positions.GetByID(ctx, id)
	assert.True(t, pos.Settled)
	require.NotNil(t, pos.PayoutAmount)
	assert.Equal(t, int64(10_000_000), *pos.PayoutAmount)

	// The retry sweep sees nothing due.
	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Settled)
	assert.Zero(t, h.ledger.transfers)
}

func TestExecuteSweepSkipsAlreadySettled(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	settled := h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	h.mintExpired(t, "bob", 110_000_000, 120_000_000, 1)
	h.setPrice(t, 115_000_000)

	// Simulate an overlapping sweep settling the first position between the
	// due listing and the conditional mark.
	require.NoError(t, h.positions.MarkSettled(ctx, settled, 5_000_000, time.Now().UTC()))

	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, 1, h.ledger.transfers)
}

func TestExecuteSweepFailsWhenLockHeld(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()
	h.locks.held = true

	_, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestExecuteSweepEmptyBacklog(t *testing.T) {
	h := newSettlementHarness(t, 0)
	ctx := context.Background()

	res, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Settled)
	assert.True(t, res.Done)
}

func TestExecuteSweepScaleMismatch(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	require.NoError(t, h.cache.SetQuote(ctx, domain.PriceQuote{
		Price:     115_000,
		Decimals:  3,
		UpdatedAt: time.Now().UTC(),
	}))

	_, err := h.svc.ExecuteSweep(ctx, 0, 10)
	require.ErrorIs(t, err, domain.ErrPriceScaleMismatch)
}

func TestSweepAllDrainsBacklog(t *testing.T) {
	h := newSettlementHarness(t, 1_000_000_000)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		h.mintExpired(t, "alice", 110_000_000, 120_000_000, 1)
	}
	h.setPrice(t, 115_000_000)
	h.svc.batchSize = 3

	res, err := h.svc.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Settled)
	assert.True(t, res.Done)
}

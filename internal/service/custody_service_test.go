package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

const testOwner = "0xOwner"

func newCustodyService(custody *fakeCustodyStore, ledger *fakeTokenLedger) *CustodyService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCustodyService(custody, ledger, auth.NewGuard(testOwner), &fakeAudit{}, "custody", logger)
}

func TestCustodyDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustodyStore{}
	svc := newCustodyService(custody, newFakeTokenLedger())

	require.NoError(t, svc.Deposit(ctx, "alice", 500))
	require.NoError(t, svc.Deposit(ctx, "bob", 250))

	balances, err := svc.Balances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balances.Native)

	require.NoError(t, svc.Withdraw(ctx, testOwner, 600))

	balances, err = svc.Balances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balances.Native)
}

func TestCustodyWithdrawRequiresOwner(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustodyStore{native: 1000}
	svc := newCustodyService(custody, newFakeTokenLedger())

	err := svc.Withdraw(ctx, "mallory", 100)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int64(1000), custody.native)
}

func TestCustodyWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc := newCustodyService(&fakeCustodyStore{native: 100}, newFakeTokenLedger())

	err := svc.Withdraw(ctx, testOwner, 500)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestCustodyReceiveToken(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeTokenLedger()
	ledger.balances["alice"] = 1000
	ledger.allowances["alice|custody"] = 400
	svc := newCustodyService(&fakeCustodyStore{}, ledger)

	require.NoError(t, svc.ReceiveToken(ctx, "alice", 400))
	assert.Equal(t, int64(400), ledger.balances["custody"])
	assert.Equal(t, int64(600), ledger.balances["alice"])

	// The allowance is spent.
	err := svc.ReceiveToken(ctx, "alice", 1)
	require.ErrorIs(t, err, domain.ErrAllowanceExceeded)
}

func TestCustodyWithdrawAllTokens(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeTokenLedger()
	ledger.balances["custody"] = 900
	svc := newCustodyService(&fakeCustodyStore{}, ledger)

	swept, err := svc.WithdrawAllTokens(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(900), swept)
	assert.Zero(t, ledger.balances["custody"])
	assert.Equal(t, int64(900), ledger.balances[testOwner])

	// Empty custody sweeps zero without error.
	swept, err = svc.WithdrawAllTokens(ctx, testOwner)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestCustodyWithdrawAllTokensRequiresOwner(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeTokenLedger()
	ledger.balances["custody"] = 900
	svc := newCustodyService(&fakeCustodyStore{}, ledger)

	_, err := svc.WithdrawAllTokens(ctx, "mallory")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int64(900), ledger.balances["custody"])
}

func TestCustodySendToken(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeTokenLedger()
	ledger.balances["custody"] = 300
	svc := newCustodyService(&fakeCustodyStore{}, ledger)

	require.NoError(t, svc.SendToken(ctx, testOwner, "alice", 120))
	assert.Equal(t, int64(120), ledger.balances["alice"])

	err := svc.SendToken(ctx, "mallory", "alice", 10)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCustodyRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	svc := newCustodyService(&fakeCustodyStore{}, newFakeTokenLedger())

	require.Error(t, svc.Deposit(ctx, "alice", 0))
	require.Error(t, svc.Deposit(ctx, "alice", -5))
	require.Error(t, svc.Withdraw(ctx, testOwner, 0))
	require.Error(t, svc.ReceiveToken(ctx, "alice", -1))
}

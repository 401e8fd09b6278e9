package domain

import (
	"context"
	"time"
)

// Kinds of custody ledger movements.
const (
	CustodyEntryDeposit      = "deposit"
	CustodyEntryWithdrawal   = "withdrawal"
	CustodyEntryPayout       = "payout"
	CustodyEntryTokenIn      = "token_in"
	CustodyEntryTokenSweep   = "token_sweep"
)

// CustodyEntry is one append-only row in the custody movement ledger.
type CustodyEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CustodyBalances is a snapshot of the pooled funding balances: native value
// held by the service and the fungible-token balance of the custody account.
type CustodyBalances struct {
	Native int64 `json:"native"`
	Token  int64 `json:"token"`
}

// CustodyStore persists the native-value balance and the movement ledger.
// Debit must fail with ErrInsufficientFunds when the balance cannot cover the
// amount, atomically with the ledger append.
type CustodyStore interface {
	NativeBalance(ctx context.Context) (int64, error)
	Credit(ctx context.Context, amount int64, account, kind, reference string) error
	Debit(ctx context.Context, amount int64, account, kind, reference string) error
	Record(ctx context.Context, e CustodyEntry) error
	ListEntries(ctx context.Context, opts ListOpts) ([]CustodyEntry, error)
}

// TokenLedger is the external fungible-token ledger funding settlement. The
// chain-backed implementation talks to an ERC-20 contract; the simulated
// implementation keeps balances in Postgres. Transfer moves custody-held
// tokens out; TransferFrom pulls tokens in and requires a prior allowance.
//
// Transfer and TransferFrom must return an error only when the movement did
// not execute. The one exception is an error wrapping the context's
// cancellation, which leaves the outcome unknown: a chain transaction may
// still mine after the caller stops waiting for its receipt. Callers that
// compensate on failure must treat that case as unresolved, not as failed.
type TokenLedger interface {
	BalanceOf(ctx context.Context, account string) (int64, error)
	Allowance(ctx context.Context, owner, spender string) (int64, error)
	Transfer(ctx context.Context, to string, amount int64) error
	TransferFrom(ctx context.Context, from, to string, amount int64) error
}

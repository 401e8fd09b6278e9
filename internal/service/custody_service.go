package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// CustodyService manages the pooled funds that back settlement: the native
// balance held by the service and the token balance of the custody account.
// Deposits are open to anyone; withdrawals and token sweeps are owner-only.
type CustodyService struct {
	custody        domain.CustodyStore
	ledger         domain.TokenLedger
	guard          *auth.Guard
	audit          domain.AuditStore
	custodyAccount string
	logger         *slog.Logger
}

// NewCustodyService creates a CustodyService with all required dependencies.
func NewCustodyService(
	custody domain.CustodyStore,
	ledger domain.TokenLedger,
	guard *auth.Guard,
	audit domain.AuditStore,
	custodyAccount string,
	logger *slog.Logger,
) *CustodyService {
	return &CustodyService{
		custody:        custody,
		ledger:         ledger,
		guard:          guard,
		audit:          audit,
		custodyAccount: custodyAccount,
		logger:         logger,
	}
}

// Deposit credits native value to the pool. Any caller may deposit.
func (s *CustodyService) Deposit(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("custody_service: deposit amount must be positive")
	}
	if err := s.custody.Credit(ctx, amount, caller, domain.CustodyEntryDeposit, ""); err != nil {
		return fmt.Errorf("custody_service: deposit: %w", err)
	}

	s.logAudit(ctx, "custody_deposit", map[string]any{
		"account": caller,
		"amount":  amount,
	})
	return nil
}

// Withdraw debits native value from the pool to the owner. Owner-only; fails
// with ErrInsufficientFunds when the pool cannot cover the amount.
func (s *CustodyService) Withdraw(ctx context.Context, caller string, amount int64) error {
	if err := s.guard.RequireOwner(caller); err != nil {
		return fmt.Errorf("custody_service: withdraw: %w", err)
	}
	if amount <= 0 {
		return fmt.Errorf("custody_service: withdraw amount must be positive")
	}
	if err := s.custody.Debit(ctx, amount, caller, domain.CustodyEntryWithdrawal, ""); err != nil {
		return fmt.Errorf("custody_service: withdraw: %w", err)
	}

	s.logAudit(ctx, "custody_withdraw", map[string]any{
		"account": caller,
		"amount":  amount,
	})
	return nil
}

// ReceiveToken pulls tokens from an external account into custody, consuming
// the allowance that account previously granted. This is how the pool is
// funded for settlement payouts.
func (s *CustodyService) ReceiveToken(ctx context.Context, from string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("custody_service: receive amount must be positive")
	}
	if err := s.ledger.TransferFrom(ctx, from, s.custodyAccount, amount); err != nil {
		return fmt.Errorf("custody_service: receive token from %q: %w", from, err)
	}

	if recErr := s.custody.Record(ctx, domain.CustodyEntry{
		Kind:      domain.CustodyEntryTokenIn,
		Account:   from,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}); recErr != nil {
		s.logger.WarnContext(ctx, "custody_service: record token receipt failed",
			slog.String("error", recErr.Error()),
		)
	}

	s.logAudit(ctx, "custody_token_in", map[string]any{
		"from":   from,
		"amount": amount,
	})
	return nil
}

// SendToken transfers custody-held tokens to an arbitrary account. Owner-only.
func (s *CustodyService) SendToken(ctx context.Context, caller, to string, amount int64) error {
	if err := s.guard.RequireOwner(caller); err != nil {
		return fmt.Errorf("custody_service: send token: %w", err)
	}
	if amount <= 0 {
		return fmt.Errorf("custody_service: send amount must be positive")
	}
	if err := s.ledger.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("custody_service: send token to %q: %w", to, err)
	}

	if recErr := s.custody.Record(ctx, domain.CustodyEntry{
		Kind:      domain.CustodyEntryTokenSweep,
		Account:   to,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}); recErr != nil {
		s.logger.WarnContext(ctx, "custody_service: record token send failed",
			slog.String("error", recErr.Error()),
		)
	}

	s.logAudit(ctx, "custody_token_out", map[string]any{
		"to":     to,
		"amount": amount,
	})
	return nil
}

// WithdrawAllTokens sweeps the entire custody token balance to the owner.
// Owner-only. A zero balance is a no-op, not an error.
func (s *CustodyService) WithdrawAllTokens(ctx context.Context, caller string) (int64, error) {
	if err := s.guard.RequireOwner(caller); err != nil {
		return 0, fmt.Errorf("custody_service: withdraw all tokens: %w", err)
	}

	balance, err := s.ledger.BalanceOf(ctx, s.custodyAccount)
	if err != nil {
		return 0, fmt.Errorf("custody_service: withdraw all tokens: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}

	if err := s.ledger.Transfer(ctx, s.guard.Owner(), balance); err != nil {
		return 0, fmt.Errorf("custody_service: withdraw all tokens: %w", err)
	}

	if recErr := s.custody.Record(ctx, domain.CustodyEntry{
		Kind:      domain.CustodyEntryTokenSweep,
		Account:   s.guard.Owner(),
		Amount:    balance,
		Reference: "withdraw_all",
		CreatedAt: time.Now().UTC(),
	}); recErr != nil {
		s.logger.WarnContext(ctx, "custody_service: record token sweep failed",
			slog.String("error", recErr.Error()),
		)
	}

	s.logAudit(ctx, "custody_token_sweep", map[string]any{
		"to":     s.guard.Owner(),
		"amount": balance,
	})
	return balance, nil
}

// Balances returns the pool's native balance and the custody token balance.
func (s *CustodyService) Balances(ctx context.Context) (domain.CustodyBalances, error) {
	native, err := s.custody.NativeBalance(ctx)
	if err != nil {
		return domain.CustodyBalances{}, fmt.Errorf("custody_service: native balance: %w", err)
	}
	token, err := s.ledger.BalanceOf(ctx, s.custodyAccount)
	if err != nil {
		return domain.CustodyBalances{}, fmt.Errorf("custody_service: token balance: %w", err)
	}
	return domain.CustodyBalances{Native: native, Token: token}, nil
}

// ListEntries returns custody ledger movements, newest first.
func (s *CustodyService) ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.CustodyEntry, error) {
	entries, err := s.custody.ListEntries(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("custody_service: list entries: %w", err)
	}
	return entries, nil
}

func (s *CustodyService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "custody_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

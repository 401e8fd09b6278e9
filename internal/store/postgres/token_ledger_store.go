package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// TokenLedgerStore implements domain.TokenLedger as a Postgres-simulated
// fungible token (ledger mode "sim"). Transfers debit and credit inside one
// transaction, so a failed transfer mutates nothing. The custody account is
// the configured holder of the pooled settlement balance.
type TokenLedgerStore struct {
	pool    *pgxpool.Pool
	custody string
}

// NewTokenLedgerStore creates a TokenLedgerStore whose Transfer debits the
// given custody account.
func NewTokenLedgerStore(pool *pgxpool.Pool, custodyAccount string) *TokenLedgerStore {
	return &TokenLedgerStore{pool: pool, custody: custodyAccount}
}

// BalanceOf returns the token balance of an account. Unknown accounts hold zero.
func (s *TokenLedgerStore) BalanceOf(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		"SELECT balance FROM token_accounts WHERE account = $1", account,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: token balance of %s: %w", account, err)
	}
	return balance, nil
}

// Allowance returns the amount spender may pull from owner.
func (s *TokenLedgerStore) Allowance(ctx context.Context, owner, spender string) (int64, error) {
	var allowance int64
	err := s.pool.QueryRow(ctx,
		"SELECT allowance FROM token_allowances WHERE owner_account = $1 AND spender_account = $2",
		owner, spender,
	).Scan(&allowance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: token allowance %s->%s: %w", owner, spender, err)
	}
	return allowance, nil
}

// Approve sets the allowance spender may pull from owner. Exposed for
// operational seeding and tests; the service itself only consumes allowances.
func (s *TokenLedgerStore) Approve(ctx context.Context, owner, spender string, amount int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_allowances (owner_account, spender_account, allowance)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_account, spender_account)
		 DO UPDATE SET allowance = EXCLUDED.allowance, updated_at = NOW()`,
		owner, spender, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: approve %s->%s: %w", owner, spender, err)
	}
	return nil
}

// Mint credits an account out of thin air. Operational seeding only.
func (s *TokenLedgerStore) Mint(ctx context.Context, account string, amount int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_accounts (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE
		 SET balance = token_accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		account, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: mint tokens for %s: %w", account, err)
	}
	return nil
}

// Transfer moves tokens from the custody account to another account.
func (s *TokenLedgerStore) Transfer(ctx context.Context, to string, amount int64) error {
	return s.move(ctx, s.custody, to, amount)
}

// TransferFrom pulls tokens from an arbitrary account after consuming its
// allowance for the custody account.
func (s *TokenLedgerStore) TransferFrom(ctx context.Context, from, to string, amount int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: transfer-from: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE token_allowances
		 SET allowance = allowance - $3, updated_at = NOW()
		 WHERE owner_account = $1 AND spender_account = $2 AND allowance >= $3`,
		from, s.custody, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: consume allowance %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAllowanceExceeded
	}

	if err := s.moveTx(ctx, tx, from, to, amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: transfer-from: %w", err)
	}
	return nil
}

func (s *TokenLedgerStore) move(ctx context.Context, from, to string, amount int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: token transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.moveTx(ctx, tx, from, to, amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: token transfer: %w", err)
	}
	return nil
}

// moveTx debits from and credits to inside the caller's transaction.
func (s *TokenLedgerStore) moveTx(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE token_accounts
		 SET balance = balance - $2, updated_at = NOW()
		 WHERE account = $1 AND balance >= $2`,
		from, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit token account %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO token_accounts (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE
		 SET balance = token_accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		to, amount,
	); err != nil {
		return fmt.Errorf("postgres: credit token account %s: %w", to, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TokenLedger = (*TokenLedgerStore)(nil)

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// CustodyStore implements domain.CustodyStore using PostgreSQL. The native
// balance lives in a single row; every movement is appended to the
// custody_ledger table in the same transaction as the balance change.
type CustodyStore struct {
	pool *pgxpool.Pool
}

// NewCustodyStore creates a new CustodyStore backed by the given connection pool.
func NewCustodyStore(pool *pgxpool.Pool) *CustodyStore {
	return &CustodyStore{pool: pool}
}

// NativeBalance returns the current native-value balance held in custody.
func (s *CustodyStore) NativeBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		"SELECT native_balance FROM custody_balance WHERE id = 1",
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: native balance: %w", err)
	}
	return balance, nil
}

// Credit increases the native balance and records the movement atomically.
func (s *CustodyStore) Credit(ctx context.Context, amount int64, account, kind, reference string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: credit custody: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE custody_balance SET native_balance = native_balance + $1, updated_at = NOW() WHERE id = 1",
		amount,
	); err != nil {
		return fmt.Errorf("postgres: credit custody: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO custody_ledger (kind, account, amount, reference) VALUES ($1, $2, $3, $4)",
		kind, account, amount, reference,
	); err != nil {
		return fmt.Errorf("postgres: record custody credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: credit custody: %w", err)
	}
	return nil
}

// Debit decreases the native balance and records the movement atomically. It
// fails with domain.ErrInsufficientFunds when the balance cannot cover the
// amount; the conditional UPDATE leaves no partial state behind.
func (s *CustodyStore) Debit(ctx context.Context, amount int64, account, kind, reference string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: debit custody: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE custody_balance
		 SET native_balance = native_balance - $1, updated_at = NOW()
		 WHERE id = 1 AND native_balance >= $1`,
		amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit custody: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO custody_ledger (kind, account, amount, reference) VALUES ($1, $2, $3, $4)",
		kind, account, -amount, reference,
	); err != nil {
		return fmt.Errorf("postgres: record custody debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: debit custody: %w", err)
	}
	return nil
}

// Record appends a ledger entry without touching the native balance. Token
// movements use it: the token balance itself lives on the token ledger.
func (s *CustodyStore) Record(ctx context.Context, e domain.CustodyEntry) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO custody_ledger (kind, account, amount, reference) VALUES ($1, $2, $3, $4)",
		e.Kind, e.Account, e.Amount, e.Reference,
	)
	if err != nil {
		return fmt.Errorf("postgres: record custody entry: %w", err)
	}
	return nil
}

// ListEntries returns custody ledger entries, newest first, with pagination
// and optional time filtering.
func (s *CustodyStore) ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.CustodyEntry, error) {
	query := `SELECT id, kind, account, amount, reference, created_at FROM custody_ledger WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list custody entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CustodyEntry
	for rows.Next() {
		var e domain.CustodyEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Account, &e.Amount, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan custody entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list custody entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.CustodyStore = (*CustodyStore)(nil)

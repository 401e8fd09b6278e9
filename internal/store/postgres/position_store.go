package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Identifiers
// are assigned by a BIGSERIAL sequence, so they are monotonically increasing
// and never reused even across restarts.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner_account, metadata_uri, lower_strike, higher_strike,
	premium, multiplier, price_decimals, expiry, settled, settled_at, payout_amount, minted_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.Owner, &p.MetadataURI, &p.LowerStrike, &p.HigherStrike,
		&p.Premium, &p.Multiplier, &p.PriceDecimals, &p.Expiry,
		&p.Settled, &p.SettledAt, &p.PayoutAmount, &p.MintedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Mint inserts a new position and returns the assigned identifier.
func (s *PositionStore) Mint(ctx context.Context, p domain.Position) (int64, error) {
	const query = `
		INSERT INTO positions (
			owner_account, metadata_uri, lower_strike, higher_strike,
			premium, multiplier, price_decimals, expiry, minted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Owner, p.MetadataURI, p.LowerStrike, p.HigherStrike,
		p.Premium, p.Multiplier, p.PriceDecimals, p.Expiry, p.MintedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: mint position: %w", err)
	}
	return id, nil
}

// GetByID returns the position with the given identifier.
func (s *PositionStore) GetByID(ctx context.Context, id int64) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// TransferOwnership reassigns the position to newOwner.
func (s *PositionStore) TransferOwnership(ctx context.Context, id int64, newOwner string) error {
	const query = `UPDATE positions SET owner_account = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, newOwner)
	if err != nil {
		return fmt.Errorf("postgres: transfer position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSettled flips the settled flag exactly once. The WHERE clause makes the
// false→true transition a hard precondition: a second call sees zero affected
// rows and fails with ErrAlreadySettled. This is the barrier against double
// payout, independent of any sweep-level locking.
func (s *PositionStore) MarkSettled(ctx context.Context, id int64, amount int64, settledAt time.Time) error {
	const query = `
		UPDATE positions SET
			settled       = TRUE,
			settled_at    = $2,
			payout_amount = $3,
			updated_at    = NOW()
		WHERE id = $1 AND NOT settled`

	tag, err := s.pool.Exec(ctx, query, id, settledAt, amount)
	if err != nil {
		return fmt.Errorf("postgres: mark position %d settled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing position from one already settled.
		var exists bool
		if qErr := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)", id,
		).Scan(&exists); qErr != nil {
			return fmt.Errorf("postgres: mark position %d settled: %w", id, qErr)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadySettled
	}
	return nil
}

// UnmarkSettled reverts MarkSettled for a position whose payout transfer did
// not execute, so the next sweep pass picks it up again. The WHERE clause
// mirrors MarkSettled's: only a currently settled row can be reverted.
func (s *PositionStore) UnmarkSettled(ctx context.Context, id int64) error {
	const query = `
		UPDATE positions SET
			settled       = FALSE,
			settled_at    = NULL,
			payout_amount = NULL,
			updated_at    = NOW()
		WHERE id = $1 AND settled`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: unmark position %d settled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDue returns unsettled positions with expiry <= now and id > afterID in
// ascending id order, bounded by limit. The ordering makes sweeps
// deterministic and the (afterID, limit) pair makes them cursor-resumable.
func (s *PositionStore) ListDue(ctx context.Context, now time.Time, afterID int64, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE NOT settled AND expiry <= $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, now, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan due positions: %w", err)
	}
	return positions, nil
}

// ListByOwner returns the positions held by an account, newest first.
func (s *PositionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE owner_account = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, owner, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", owner, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", owner, err)
	}
	return positions, nil
}

// ListSettledBefore returns settled positions whose settlement time is
// strictly before the cutoff, for archival.
func (s *PositionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE settled AND settled_at < $1
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled positions: %w", err)
	}
	return positions, nil
}

// Count returns the total number of positions ever minted.
func (s *PositionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count positions: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

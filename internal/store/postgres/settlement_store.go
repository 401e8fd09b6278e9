package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// InsertBatch appends settlement records for one sweep in a single batch.
func (s *SettlementStore) InsertBatch(ctx context.Context, settlements []domain.Settlement) error {
	if len(settlements) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO settlements (position_id, recipient, amount, price, decimals, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, st := range settlements {
		batch.Queue(query, st.PositionID, st.Recipient, st.Amount, st.Price, st.Decimals, st.SettledAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range settlements {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert settlements: %w", err)
		}
	}
	return nil
}

// ListRecent returns the most recent settlement records, newest first.
func (s *SettlementStore) ListRecent(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT position_id, recipient, amount, price, decimals, settled_at
		FROM settlements
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		var st domain.Settlement
		if err := rows.Scan(&st.PositionID, &st.Recipient, &st.Amount, &st.Price, &st.Decimals, &st.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return settlements, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists option positions. Mint assigns the identifier:
// monotonically increasing, never reused. MarkSettled is a hard precondition:
// it fails with ErrAlreadySettled when the position is already settled, which
// is the barrier against double payout.
type PositionStore interface {
	Mint(ctx context.Context, pos Position) (int64, error)
	GetByID(ctx context.Context, id int64) (Position, error)
	TransferOwnership(ctx context.Context, id int64, newOwner string) error
	MarkSettled(ctx context.Context, id int64, amount int64, settledAt time.Time) error
	// UnmarkSettled reverts MarkSettled for a position whose payout transfer
	// is known not to have executed, returning it to the due set for retry.
	UnmarkSettled(ctx context.Context, id int64) error
	// ListDue returns unsettled positions with expiry <= now and id > afterID,
	// in ascending id order, at most limit rows.
	ListDue(ctx context.Context, now time.Time, afterID int64, limit int) ([]Position, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Position, error)
	// ListSettledBefore supports archival of settled positions.
	ListSettledBefore(ctx context.Context, before time.Time) ([]Position, error)
	Count(ctx context.Context) (int64, error)
}

// SettlementStore persists the per-position payout records produced by sweeps.
type SettlementStore interface {
	InsertBatch(ctx context.Context, settlements []Settlement) error
	ListRecent(ctx context.Context, limit int) ([]Settlement, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

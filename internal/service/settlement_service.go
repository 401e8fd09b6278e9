package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// settlementLockKey serialises sweeps across processes.
const settlementLockKey = "settlement:sweep"

// Notifier delivers operator alerts. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SweepResult summarises one bounded settlement pass.
type SweepResult struct {
	Settled    int   `json:"settled"`
	TotalPaid  int64 `json:"total_paid"`
	NextCursor int64 `json:"next_cursor"`
	Done       bool  `json:"done"`
}

// SettlementService runs the expiry sweep: it finds due positions, computes
// their payoffs against one price snapshot, verifies funding, pays each holder
// from the custody token account, and records the results. A sweep pass is
// bounded (cursor + limit) so large backlogs settle across repeated calls
// without holding the lock for long.
type SettlementService struct {
	positions      domain.PositionStore
	settlements    domain.SettlementStore
	custody        domain.CustodyStore
	ledger         domain.TokenLedger
	prices         *PriceService
	locks          domain.LockManager
	bus            domain.SignalBus
	audit          domain.AuditStore
	notifier       Notifier
	custodyAccount string
	batchSize      int
	lockTTL        time.Duration
	logger         *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies. The notifier may be nil.
func NewSettlementService(
	positions domain.PositionStore,
	settlements domain.SettlementStore,
	custody domain.CustodyStore,
	ledger domain.TokenLedger,
	prices *PriceService,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	custodyAccount string,
	batchSize int,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		positions:      positions,
		settlements:    settlements,
		custody:        custody,
		ledger:         ledger,
		prices:         prices,
		locks:          locks,
		bus:            bus,
		audit:          audit,
		notifier:       notifier,
		custodyAccount: custodyAccount,
		batchSize:      batchSize,
		lockTTL:        lockTTL,
		logger:         logger,
	}
}

// ExecuteSweep settles at most limit due positions with an id greater than
// afterID, returning the cursor for the next pass. A limit <= 0 falls back to
// the configured batch size.
//
// The pass takes a single price snapshot and prices every position in the
// batch against it. Before any state changes, the total payoff is checked
// against the custody token balance; an underfunded batch aborts whole with
// ErrInsufficientFunds and leaves every position unsettled. Marking a position
// settled is a conditional write, so a position already settled by an
// overlapping sweep is skipped rather than paid twice. A payout transfer that
// fails after the mark is compensated: the mark is reverted and the position
// returns to the due set, unless the transfer outcome is unresolved (see
// failTransfer).
func (s *SettlementService) ExecuteSweep(ctx context.Context, afterID int64, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = s.batchSize
	}

	unlock, err := s.locks.Acquire(ctx, settlementLockKey, s.lockTTL)
	if err != nil {
		return SweepResult{}, fmt.Errorf("settlement_service: acquire sweep lock: %w", err)
	}
	defer unlock()

	now := time.Now().UTC()

	due, err := s.positions.ListDue(ctx, now, afterID, limit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("settlement_service: list due: %w", err)
	}
	if len(due) == 0 {
		return SweepResult{NextCursor: afterID, Done: true}, nil
	}

	quote, err := s.prices.Snapshot(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("settlement_service: price snapshot: %w", err)
	}

	// Price the whole batch before touching any state.
	payoffs := make([]int64, len(due))
	var total int64
	for i, pos := range due {
		amount, payErr := domain.Payoff(quote, pos)
		if payErr != nil {
			return SweepResult{}, fmt.Errorf("settlement_service: payoff for position %d: %w", pos.ID, payErr)
		}
		payoffs[i] = amount
		total, err = domain.AddChecked(total, amount)
		if err != nil {
			return SweepResult{}, fmt.Errorf("settlement_service: batch total: %w", err)
		}
	}

	balance, err := s.ledger.BalanceOf(ctx, s.custodyAccount)
	if err != nil {
		return SweepResult{}, fmt.Errorf("settlement_service: custody balance: %w", err)
	}
	if balance < total {
		s.alert(ctx, "settlement_underfunded", "Settlement sweep aborted",
			fmt.Sprintf("custody balance %d cannot cover batch payout %d (%d positions)", balance, total, len(due)))
		return SweepResult{}, fmt.Errorf("settlement_service: batch payout %d exceeds custody balance %d: %w",
			total, balance, domain.ErrInsufficientFunds)
	}

	result := SweepResult{NextCursor: due[len(due)-1].ID, Done: len(due) < limit}
	records := make([]domain.Settlement, 0, len(due))

	for i, pos := range due {
		amount := payoffs[i]

		// The conditional settled flag flip is the double-payout barrier: it
		// must land before the transfer.
		if err := s.positions.MarkSettled(ctx, pos.ID, amount, now); err != nil {
			if errors.Is(err, domain.ErrAlreadySettled) {
				s.logger.WarnContext(ctx, "settlement_service: position already settled, skipping",
					slog.Int64("position_id", pos.ID),
				)
				continue
			}
			return result, fmt.Errorf("settlement_service: mark settled %d: %w", pos.ID, err)
		}

		if amount > 0 {
			if err := s.ledger.Transfer(ctx, pos.Owner, amount); err != nil {
				return result, s.failTransfer(ctx, pos, amount, err)
			}

			if recErr := s.custody.Record(ctx, domain.CustodyEntry{
				Kind:      domain.CustodyEntryPayout,
				Account:   pos.Owner,
				Amount:    amount,
				Reference: fmt.Sprintf("position:%d", pos.ID),
				CreatedAt: now,
			}); recErr != nil {
				s.logger.WarnContext(ctx, "settlement_service: record payout entry failed",
					slog.Int64("position_id", pos.ID),
					slog.String("error", recErr.Error()),
				)
			}
		}

		records = append(records, domain.Settlement{
			PositionID: pos.ID,
			Recipient:  pos.Owner,
			Amount:     amount,
			Price:      quote.Price,
			Decimals:   quote.Decimals,
			SettledAt:  now,
		})
		result.Settled++
		result.TotalPaid += amount
	}

	if len(records) > 0 {
		if err := s.settlements.InsertBatch(ctx, records); err != nil {
			return result, fmt.Errorf("settlement_service: insert settlement records: %w", err)
		}
		s.publishBatch(ctx, records, quote, result)
	}

	s.logger.InfoContext(ctx, "settlement_service: sweep pass complete",
		slog.Int("settled", result.Settled),
		slog.Int64("total_paid", result.TotalPaid),
		slog.Int64("next_cursor", result.NextCursor),
		slog.Bool("done", result.Done),
	)

	return result, nil
}

// failTransfer handles a payout transfer that returned an error after the
// position was marked settled. The ledger contract says a transfer error
// means nothing moved, except when the error wraps the context's
// cancellation; in that unresolved case the mark is kept, because a chain
// transaction abandoned mid-wait may still mine, and reverting would risk a
// double payout on retry. Every other failure reverts the mark so the next
// sweep pass retries the payout.
func (s *SettlementService) failTransfer(ctx context.Context, pos domain.Position, amount int64, transferErr error) error {
	if errors.Is(transferErr, context.Canceled) || errors.Is(transferErr, context.DeadlineExceeded) {
		s.alert(ctx, "settlement_transfer_failed", "Settlement transfer unresolved",
			fmt.Sprintf("position %d payout of %d to %s interrupted mid-flight, row kept settled pending manual check: %v",
				pos.ID, amount, pos.Owner, transferErr))
		return fmt.Errorf("settlement_service: transfer for position %d unresolved: %w", pos.ID, transferErr)
	}

	if revErr := s.positions.UnmarkSettled(ctx, pos.ID); revErr != nil {
		// The row stays marked with the owed amount recorded.
		s.alert(ctx, "settlement_transfer_failed", "Settlement payout stranded",
			fmt.Sprintf("position %d owes %d to %s and the settled mark could not be reverted: %v (transfer: %v)",
				pos.ID, amount, pos.Owner, revErr, transferErr))
		return fmt.Errorf("settlement_service: revert settled mark for position %d after failed transfer: %v (transfer: %w)",
			pos.ID, revErr, transferErr)
	}

	s.alert(ctx, "settlement_transfer_failed", "Settlement transfer failed",
		fmt.Sprintf("position %d payout of %d to %s failed and was reverted for retry: %v",
			pos.ID, amount, pos.Owner, transferErr))
	return fmt.Errorf("settlement_service: transfer for position %d: %w", pos.ID, transferErr)
}

// SweepAll runs bounded passes until no due positions remain. The background
// sweeper calls this on every tick; the cursor restarts at zero so positions
// skipped by an aborted earlier pass are retried.
func (s *SettlementService) SweepAll(ctx context.Context) (SweepResult, error) {
	var agg SweepResult
	cursor := int64(0)
	for {
		res, err := s.ExecuteSweep(ctx, cursor, s.batchSize)
		agg.Settled += res.Settled
		agg.TotalPaid += res.TotalPaid
		agg.NextCursor = res.NextCursor
		agg.Done = res.Done
		if err != nil {
			return agg, err
		}
		if res.Done {
			return agg, nil
		}
		cursor = res.NextCursor
	}
}

// ListRecent returns the most recent settlement records.
func (s *SettlementService) ListRecent(ctx context.Context, limit int) ([]domain.Settlement, error) {
	records, err := s.settlements.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: list recent: %w", err)
	}
	return records, nil
}

func (s *SettlementService) publishBatch(ctx context.Context, records []domain.Settlement, quote domain.PriceQuote, result SweepResult) {
	evt, _ := json.Marshal(map[string]any{
		"event":      "settlement_batch",
		"settled":    result.Settled,
		"total_paid": result.TotalPaid,
		"price":      quote.Price,
		"decimals":   quote.Decimals,
		"settled_at": records[0].SettledAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "settlements", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish batch event failed",
			slog.String("error", pubErr.Error()),
		)
	}
	if streamErr := s.bus.StreamAppend(ctx, "settlements", evt); streamErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: stream append failed",
			slog.String("error", streamErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "settlement_batch", map[string]any{
		"settled":    result.Settled,
		"total_paid": result.TotalPaid,
		"price":      quote.Price,
		"cursor":     result.NextCursor,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.alert(ctx, "settlement_batch", "Settlement batch complete",
		fmt.Sprintf("settled %d positions, paid %d at price %d", result.Settled, result.TotalPaid, quote.Price))
}

func (s *SettlementService) alert(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

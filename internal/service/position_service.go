package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/auth"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// MintRequest carries the parameters for issuing one option position. Strike
// prices and premium are fixed-point integers at the feed's decimal scale.
type MintRequest struct {
	Owner        string    `json:"owner"`
	MetadataURI  string    `json:"metadata_uri"`
	LowerStrike  int64     `json:"lower_strike"`
	HigherStrike int64     `json:"higher_strike"`
	Premium      int64     `json:"premium"`
	Multiplier   int64     `json:"multiplier"`
	Expiry       time.Time `json:"expiry"`
}

// PayoffQuote is the result of a payoff query: the amount the position would
// pay at the quoted price, or did pay if it is already settled.
type PayoffQuote struct {
	PositionID int64             `json:"position_id"`
	Amount     int64             `json:"amount"`
	Settled    bool              `json:"settled"`
	Quote      domain.PriceQuote `json:"quote"`
}

// PositionService handles the issuance lifecycle: minting, ownership transfer,
// and payoff queries against the current reference price.
type PositionService struct {
	positions domain.PositionStore
	prices    *PriceService
	guard     *auth.Guard
	bus       domain.SignalBus
	audit     domain.AuditStore
	decimals  int32
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	positions domain.PositionStore,
	prices *PriceService,
	guard *auth.Guard,
	bus domain.SignalBus,
	audit domain.AuditStore,
	decimals int32,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		prices:    prices,
		guard:     guard,
		bus:       bus,
		audit:     audit,
		decimals:  decimals,
		logger:    logger,
	}
}

// Mint issues a new position to req.Owner. Only the service owner may mint.
// The position is stamped with the feed's decimal scale so payoff computation
// can verify the quote matches.
func (s *PositionService) Mint(ctx context.Context, caller string, req MintRequest) (domain.Position, error) {
	if err := s.guard.RequireOwner(caller); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: mint: %w", err)
	}

	now := time.Now().UTC()
	pos := domain.Position{
		Owner:         req.Owner,
		MetadataURI:   req.MetadataURI,
		LowerStrike:   req.LowerStrike,
		HigherStrike:  req.HigherStrike,
		Premium:       req.Premium,
		Multiplier:    req.Multiplier,
		PriceDecimals: s.decimals,
		Expiry:        req.Expiry.UTC(),
		MintedAt:      now,
	}
	if err := pos.Validate(now); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: mint: %w", err)
	}

	id, err := s.positions.Mint(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: mint: %w", err)
	}
	pos.ID = id

	evt, _ := json.Marshal(map[string]any{
		"event":         "position_minted",
		"position_id":   id,
		"owner":         pos.Owner,
		"lower_strike":  pos.LowerStrike,
		"higher_strike": pos.HigherStrike,
		"multiplier":    pos.Multiplier,
		"expiry":        pos.Expiry.Format(time.RFC3339),
	})
	if pubErr := s.bus.Publish(ctx, "positions", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "position_service: publish mint event failed",
			slog.Int64("position_id", id),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "position_minted", map[string]any{
		"position_id":   id,
		"owner":         pos.Owner,
		"lower_strike":  pos.LowerStrike,
		"higher_strike": pos.HigherStrike,
		"premium":       pos.Premium,
		"multiplier":    pos.Multiplier,
		"expiry":        pos.Expiry.Format(time.RFC3339),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.Int64("position_id", id),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position_service: position minted",
		slog.Int64("position_id", id),
		slog.String("owner", pos.Owner),
	)

	return pos, nil
}

// Get retrieves a single position by its identifier.
func (s *PositionService) Get(ctx context.Context, id int64) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %d: %w", id, err)
	}
	return pos, nil
}

// ListByOwner returns positions held by an account, newest first.
func (s *PositionService) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list by owner %q: %w", owner, err)
	}
	return positions, nil
}

// Transfer reassigns a position to a new owner. Only the current holder (or
// the service owner) may transfer.
func (s *PositionService) Transfer(ctx context.Context, caller string, id int64, newOwner string) error {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("position_service: transfer %d: %w", id, err)
	}
	if caller != pos.Owner && s.guard.RequireOwner(caller) != nil {
		return fmt.Errorf("position_service: transfer %d: %w", id, domain.ErrUnauthorized)
	}

	if err := s.positions.TransferOwnership(ctx, id, newOwner); err != nil {
		return fmt.Errorf("position_service: transfer %d: %w", id, err)
	}

	if auditErr := s.audit.Log(ctx, "position_transferred", map[string]any{
		"position_id": id,
		"from":        pos.Owner,
		"to":          newOwner,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.Int64("position_id", id),
			slog.String("error", auditErr.Error()),
		)
	}

	return nil
}

// CalculatePayoff returns the payoff of a position at the current reference
// price. For a settled position it returns the recorded payout instead of
// recomputing, so the answer never drifts from what was actually paid.
func (s *PositionService) CalculatePayoff(ctx context.Context, id int64) (PayoffQuote, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return PayoffQuote{}, fmt.Errorf("position_service: payoff %d: %w", id, err)
	}

	if pos.Settled {
		var amount int64
		if pos.PayoutAmount != nil {
			amount = *pos.PayoutAmount
		}
		return PayoffQuote{PositionID: id, Amount: amount, Settled: true}, nil
	}

	quote, err := s.prices.Snapshot(ctx)
	if err != nil {
		return PayoffQuote{}, fmt.Errorf("position_service: payoff %d: %w", id, err)
	}

	amount, err := domain.Payoff(quote, pos)
	if err != nil {
		return PayoffQuote{}, fmt.Errorf("position_service: payoff %d: %w", id, err)
	}

	return PayoffQuote{PositionID: id, Amount: amount, Quote: quote}, nil
}

// Count returns the total number of positions ever minted.
func (s *PositionService) Count(ctx context.Context) (int64, error) {
	n, err := s.positions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("position_service: count: %w", err)
	}
	return n, nil
}

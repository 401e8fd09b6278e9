package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/server/middleware"
	"github.com/jrivoire69/CS-blockchain/internal/service"
)

// PositionService defines the methods the position handler requires from the
// service layer.
type PositionService interface {
	Mint(ctx context.Context, caller string, req service.MintRequest) (domain.Position, error)
	Get(ctx context.Context, id int64) (domain.Position, error)
	ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error)
	Transfer(ctx context.Context, caller string, id int64, newOwner string) error
	CalculatePayoff(ctx context.Context, id int64) (service.PayoffQuote, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

// Mint issues a new position from a JSON body. Owner-only.
// POST /api/positions
func (h *PositionHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req service.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	pos, err := h.positions.Mint(r.Context(), middleware.Caller(r.Context()), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "only the service owner may mint")
		case errors.Is(err, domain.ErrInvalidStrikeOrder):
			writeError(w, http.StatusBadRequest, "lower strike must be below higher strike")
		case errors.Is(err, domain.ErrInvalidMultiplier):
			writeError(w, http.StatusBadRequest, "multiplier must be positive")
		case errors.Is(err, domain.ErrExpiryInPast):
			writeError(w, http.StatusBadRequest, "expiry must be in the future")
		default:
			h.logger.ErrorContext(r.Context(), "handler: mint failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to mint position")
		}
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// GetPosition returns a single position by id.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	pos, err := h.positions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.Int64("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns positions held by an owner.
// GET /api/positions?owner=0x...&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	positions, err := h.positions.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// transferRequest is the body for ownership transfers.
type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

// Transfer reassigns a position to a new owner. Holder-only.
// POST /api/positions/{id}/transfer
func (h *PositionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.NewOwner == "" {
		writeError(w, http.StatusBadRequest, "new_owner is required")
		return
	}

	if err := h.positions.Transfer(r.Context(), middleware.Caller(r.Context()), id, req.NewOwner); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "only the current holder may transfer")
		default:
			h.logger.ErrorContext(r.Context(), "handler: transfer failed",
				slog.Int64("position_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to transfer position")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "transferred",
		"position_id": id,
		"new_owner":   req.NewOwner,
	})
}

// Payoff returns the payoff a position would earn at the current price, or the
// recorded payout for a settled position.
// GET /api/positions/{id}/payoff
func (h *PositionHandler) Payoff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	quote, err := h.positions.CalculatePayoff(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrOracleUnavailable), errors.Is(err, domain.ErrStalePrice):
			writeError(w, http.StatusServiceUnavailable, "price feed unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "handler: payoff failed",
				slog.Int64("position_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to compute payoff")
		}
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

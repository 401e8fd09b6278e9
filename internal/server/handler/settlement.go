package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
	"github.com/jrivoire69/CS-blockchain/internal/service"
)

// SettlementService defines the methods the settlement handler requires from
// the service layer.
type SettlementService interface {
	ExecuteSweep(ctx context.Context, afterID int64, limit int) (service.SweepResult, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Settlement, error)
}

// SettlementHandler serves settlement-related HTTP endpoints.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// executeRequest is the optional body for a sweep trigger. Zero values fall
// back to a fresh cursor and the configured batch size.
type executeRequest struct {
	AfterID int64 `json:"after_id"`
	Limit   int   `json:"limit"`
}

// Execute runs one bounded settlement pass and returns its result, including
// the cursor for the next pass.
// POST /api/settlement/execute
func (h *SettlementHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.settlements.ExecuteSweep(r.Context(), req.AfterID, req.Limit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "a settlement sweep is already running")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusConflict, "custody balance cannot cover the batch payout")
		case errors.Is(err, domain.ErrOracleUnavailable), errors.Is(err, domain.ErrStalePrice):
			writeError(w, http.StatusServiceUnavailable, "price feed unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "handler: settlement sweep failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "settlement sweep failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// listSettlementsResponse wraps the settlement list response.
type listSettlementsResponse struct {
	Settlements []domain.Settlement `json:"settlements"`
}

// ListRecent returns the most recent settlement records.
// GET /api/settlements?limit=50
func (h *SettlementHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	settlements, err := h.settlements.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if settlements == nil {
		settlements = []domain.Settlement{}
	}

	writeJSON(w, http.StatusOK, listSettlementsResponse{Settlements: settlements})
}
